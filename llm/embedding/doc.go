// 版权所有 2024 AgentBase Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 把文本转换为向量，供 rag.KnowledgeBase 写入与检索。

三种实现：

  - OpenAIProvider：POST /v1/embeddings，也可指向任何兼容端点（Ollama、vLLM 等）。
  - GeminiProvider：google.golang.org/genai 的 EmbedContent，
    查询用 RETRIEVAL_QUERY，文档用 RETRIEVAL_DOCUMENT。
  - HashProvider：xxhash 特征哈希，离线可用且结果确定。

超过 MaxInputLength 的输入按 rune 截断；EmbedDocuments 按 MaxBatchSize 分批。

	p := embedding.NewOpenAIProvider(embedding.OpenAIConfig{APIKey: key})
	vecs, err := p.EmbedDocuments(ctx, chunks)
*/
package embedding
