// Copyright 2025-2026 AgentBase Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供 agent 使用的向量知识库：向量存储接口、三种后端实现，
以及把向量存储与嵌入提供者组合起来的 KnowledgeBase。

# 核心接口/类型

  - Document / SearchResult / Filter：文档、检索结果与元数据精确匹配过滤
  - VectorStore：向量数据库统一接口（Add / Search / Delete / Get / List / Count）
  - Clearable：可选的清空接口
  - KnowledgeBase：写入时补齐向量（UUID + 分批嵌入），检索时嵌入查询

# 后端

  - InMemoryVectorStore：余弦相似度暴力检索，可选 JSON 快照持久化
  - QdrantStore：Qdrant REST API，点 ID 由文档 ID 派生
  - ChromaStore：Chroma REST API v1，距离按 1-d（d≤1）或 1/(1+d) 转换为分数
*/
package rag
