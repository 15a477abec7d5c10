// Package ghcp2o 提供将 GitHub Copilot Chat API（基于 OAuth token 的
// chat/completions 接口）转换为 OpenAI 兼容 API 的能力，方便第三方程序以
// OpenAI SDK 的方式调用，从而在订阅模式下节省 APIKey 成本。
//
// 该仓库主要包含三类能力：
//  1. 凭证核心：auth 包负责从本地配置（apps.json/hosts.json/本地登录文件）
//     发现长效 OAuth token、交换短效 API token（带过期缓存）、以及在没有
//     凭证时执行 Device Flow 登录并落盘
//  2. HTTP 兼容层：openaihttp 包导出 /v1/models、/v1/chat/completions handlers
//  3. SDK：backend 包提供可供 Eino/ADK 使用的 ToolCallingChatModel 实现
package ghcp2o
