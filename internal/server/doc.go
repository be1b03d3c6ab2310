// 版权所有 2024 GuardFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理代理进程的监听面：代理端口与指标端口作为一组
命名监听端口统一启动、统一停机。

# 概述

GuardFlow 对外有两个端口，代理端口承载受护与透传流量，指标端口
暴露 Prometheus 抓取面。本包以 Listener 封装单个端口的
net/http.Server 生命周期，以 Group 把多个端口编为一组，提供
非阻塞启动、启动失败回滚、信号等待与按序优雅关闭。

# 核心类型

  - Listener：受管监听端口，持有 http.Server 与 net.Listener，
    服务错误带端口名上送所属 Group。
  - Group：监听组，Add 注册命名端口，Start/Wait/Shutdown 管理
    整组生命周期。
  - Config：单端口配置，含监听地址、读写与空闲超时、请求头
    上限、关闭超时与可选 TLS 证书对。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行各端口服务。
  - 启动回滚：任一端口启动失败时关闭已启动的端口后返回错误。
  - 信号等待：Wait 阻塞至 SIGINT/SIGTERM 或任一端口异常退出。
  - 优雅关闭：Shutdown 按注册顺序在配置超时内排空在途请求，
    代理端口先停接入。
  - TLS 支持：Config 指定证书对的端口走 HTTPS。
*/
package server
