// Package llm 定义自然语言补全服务的统一抽象。
// 具体实现位于子包中，目前提供兼容 OpenAI Chat Completions
// 协议的客户端，可对接 Groq、DeepSeek 等服务。
package llm
