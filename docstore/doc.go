// Package docstore 保存原始文档（上传前的全文与元数据）。
//
// 提供两种实现：FileSystemStore 以目录形式保存正文与元数据，
// SQLStore 通过 gorm 写入 documents 表。两者都以内容 SHA-256 去重，
// 相同内容重复写入时返回已有文档 ID。
package docstore
