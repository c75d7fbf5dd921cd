package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultConfigYAML is written by `agentbase init-config`.
const DefaultConfigYAML = `# agentbase default configuration
server:
  host: 0.0.0.0
  port: 8000
  debug: false
  cors_enabled: true
  cors_origins: ["*"]
  read_timeout: 30s
  write_timeout: 120s
  shutdown_timeout: 15s
  rate_limit_rps: 0
  rate_limit_burst: 20

log:
  level: info
  format: json
  output_paths: [stdout]

vector_store:
  type: memory          # memory | chroma | qdrant
  path: ./data/vectors
  collection_name: ai_agents
  url: ""

document_store:
  type: filesystem      # filesystem | sql
  base_path: ./data/documents

memory:
  type: in_memory       # in_memory | redis | sql
  max_sessions: 1000
  session_timeout: 24h

llm:
  type: openai          # openai | anthropic | gemini | mock
  model: gpt-3.5-turbo
  temperature: 0.7
  max_tokens: 2000
  timeout: 60s

embedding:
  type: openai          # openai | gemini | hash
  model: text-embedding-ada-002
  batch_size: 100

agents:
  general:
    system_prompt: "You are a helpful AI assistant that can answer questions and help with various tasks."
    tools: [web_search, calculator]
    rag_settings:
      top_k: 5
      similarity_threshold: 0.7
  code_assistant:
    system_prompt: "You are an expert code assistant that helps developers write clean, efficient code following best practices."
    tools: [web_search, file_operations, code_execution]
    rag_settings:
      top_k: 7
      similarity_threshold: 0.8
  research_agent:
    system_prompt: "You are a research assistant that finds credible sources, summarizes complex topics, and provides citations."
    tools: [web_search]
    rag_settings:
      top_k: 10
      similarity_threshold: 0.6
  document_qa:
    system_prompt: "You are a document analysis assistant that answers questions based on provided documents with accurate citations."
    tools: []
    rag_settings:
      top_k: 8
      similarity_threshold: 0.7

tools:
  web_search:
    max_results: 5
    cache_results: true
    quality_threshold: 0.8
    cache_freshness_days: 30
    cache_path: ./data/web_cache
    timeout: 10s
  file_operations:
    allowed_paths: [./workspace/, ./data/]
    max_file_size: 10485760
  code_execution:
    timeout_seconds: 30
    max_output_length: 10000
    allowed_languages: [python, javascript, bash]
    enable_network: false
    max_memory_mb: 128
    max_cpu_time: 10
    backend: process

redis:
  addr: localhost:6379
  db: 0

database:
  driver: sqlite
  name: ./data/agentbase.db
  auto_migrate: true

telemetry:
  enabled: false
  otlp_endpoint: localhost:4317
  service_name: agentbase
  sample_rate: 1.0

auth:
  enabled: false
  api_keys: []

scheduler:
  enabled: true
  session_cleanup_spec: "@every 1h"
  session_max_age: 24h
  cache_cleanup_spec: "@daily"
  cache_max_age: 720h
`

// WriteDefaultConfigFile creates dir/default.yaml when it does not exist.
// It returns the file path and whether a new file was written.
func WriteDefaultConfigFile(dir string) (string, bool, error) {
	path := filepath.Join(dir, DefaultConfigFiles[0])
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return path, false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, false, fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o644); err != nil {
		return path, false, fmt.Errorf("write default config: %w", err)
	}
	return path, true, nil
}
