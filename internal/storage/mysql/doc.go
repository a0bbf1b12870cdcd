// Package mysql 提供基于 MySQL 的转账审计日志实现，
// 包含连接管理与嵌入式 SQL 迁移。
package mysql
