// Package wallet 定义链上钱包操作的统一抽象：余额查询、费用预估、
// 原生币转账、交易状态追踪与密钥对生成。具体链的实现位于子包中，
// 多链配置通过 configs/chains.yaml 描述。
package wallet
