package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// FileOperationsConfig file_operations 工具配置
type FileOperationsConfig struct {
	AllowedPaths      []string `yaml:"allowed_paths" json:"allowed_paths"`
	MaxFileSize       int64    `yaml:"max_file_size" json:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
}

// DefaultFileOperationsConfig 返回默认配置
func DefaultFileOperationsConfig() FileOperationsConfig {
	return FileOperationsConfig{
		AllowedPaths: []string{"./workspace/", "./data/"},
		MaxFileSize:  10 * 1024 * 1024,
		AllowedExtensions: []string{
			".txt", ".md", ".json", ".yaml", ".yml", ".csv", ".py", ".js", ".html", ".css",
		},
	}
}

// FileOperationsTool 在允许的目录内执行基础文件操作
type FileOperationsTool struct {
	allowed    []string
	maxSize    int64
	extensions map[string]struct{}
	logger     *zap.Logger
}

// NewFileOperationsTool 创建文件操作工具。AllowedPaths 在创建时解析为绝对路径。
func NewFileOperationsTool(cfg FileOperationsConfig, logger *zap.Logger) *FileOperationsTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultFileOperationsConfig()
	if cfg.AllowedPaths == nil {
		cfg.AllowedPaths = def.AllowedPaths
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = def.MaxFileSize
	}
	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = def.AllowedExtensions
	}

	t := &FileOperationsTool{
		maxSize:    cfg.MaxFileSize,
		extensions: make(map[string]struct{}, len(cfg.AllowedExtensions)),
		logger:     logger.With(zap.String("component", "file_operations")),
	}
	for _, p := range cfg.AllowedPaths {
		abs, err := resolvePath(p)
		if err != nil {
			t.logger.Warn("skip allowed path", zap.String("path", p), zap.Error(err))
			continue
		}
		t.allowed = append(t.allowed, abs)
	}
	for _, ext := range cfg.AllowedExtensions {
		t.extensions[strings.ToLower(ext)] = struct{}{}
	}
	return t
}

func (t *FileOperationsTool) Name() string     { return "file_operations" }
func (t *FileOperationsTool) Category() string { return CategoryFileSystem }

func (t *FileOperationsTool) Description() string {
	return "Performs file system operations like reading, writing, listing files and directories. " +
		"Supports operations: read, write, list, mkdir, exists, delete. " +
		"Example: 'read file.txt' or 'list ./data/' or 'write content to output.txt'"
}

func (t *FileOperationsTool) UsageExamples() []string {
	return []string{
		"read config.txt",
		"write Hello World to output.txt",
		"list ./data/",
		"mkdir new_folder",
		"exists myfile.txt",
		"delete old_file.txt",
	}
}

type fileOperationInput struct {
	Input string `json:"input" jsonschema:"description=File operation command"`
}

func (t *FileOperationsTool) ParameterSchema() map[string]any {
	return GenerateSchema[fileOperationInput]()
}

func (t *FileOperationsTool) Validate(input string) bool { return NonEmpty(input) }

// fileOp 解析后的操作
type fileOp struct {
	verb    string
	path    string
	content string
}

// parseFileOperation 只对动词做大小写归一，路径与写入内容保持原样
func parseFileOperation(input string) (fileOp, bool) {
	text := strings.TrimSpace(input)
	verb, rest, _ := strings.Cut(text, " ")
	rest = strings.TrimSpace(rest)

	switch v := strings.ToLower(verb); v {
	case "read", "mkdir", "exists", "delete":
		return fileOp{verb: v, path: rest}, true
	case "list", "ls":
		if rest == "" {
			rest = "."
		}
		return fileOp{verb: "list", path: rest}, true
	case "write":
		if content, path, ok := strings.Cut(rest, " to "); ok {
			return fileOp{verb: "write", path: strings.TrimSpace(path), content: strings.TrimSpace(content)}, true
		}
		if path, content, ok := strings.Cut(rest, ": "); ok {
			return fileOp{verb: "write", path: strings.TrimSpace(path), content: strings.TrimSpace(content)}, true
		}
		return fileOp{verb: "write", path: rest}, true
	}
	return fileOp{}, false
}

func (t *FileOperationsTool) Execute(ctx context.Context, input string, _ map[string]any) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	op, ok := parseFileOperation(input)
	if !ok {
		return Fail("Please specify a file operation (read, write, list, mkdir, exists, delete)."), nil
	}

	switch op.verb {
	case "read":
		return t.read(op.path), nil
	case "write":
		return t.write(op.path, op.content), nil
	case "list":
		return t.list(op.path), nil
	case "mkdir":
		return t.mkdir(op.path), nil
	case "exists":
		return t.exists(op.path), nil
	case "delete":
		return t.delete(op.path), nil
	}
	return Fail(fmt.Sprintf("Unsupported operation: %s", op.verb)), nil
}

// PathAllowed 判断路径是否位于允许目录内（按路径分隔符边界比较）。
// 符号链接先解析到真实位置，指向目录外的链接不被允许。
func (t *FileOperationsTool) PathAllowed(path string) bool {
	abs, err := resolvePath(path)
	if err != nil {
		return false
	}
	for _, root := range t.allowed {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// resolvePath 绝对路径 + 解析符号链接。不存在的尾部按原样拼回，
// 以便 write / mkdir 的目标路径也能校验。
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	cur, rest := abs, ""
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

func (t *FileOperationsTool) extensionAllowed(path string) bool {
	if len(t.extensions) == 0 {
		return true
	}
	_, ok := t.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func accessDenied(path string) *Result {
	return Fail(fmt.Sprintf("Access denied: Path '%s' is not in allowed directories.", path))
}

func (t *FileOperationsTool) read(path string) *Result {
	if path == "" {
		return Fail("File path is required for read operation.")
	}
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fail(fmt.Sprintf("File not found: %s", path))
	}
	if err != nil {
		return Fail(fmt.Sprintf("Failed to read file: %v", err))
	}
	if info.Size() > t.maxSize {
		return Fail(fmt.Sprintf("File too large (max %d bytes).", t.maxSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(fmt.Sprintf("Failed to read file: %v", err))
	}
	if !utf8.Valid(data) {
		return Fail("Cannot read file: Not a text file or encoding issue.")
	}
	content := string(data)
	return Succeed(content, map[string]any{
		"path":      path,
		"size":      utf8.RuneCountInString(content),
		"operation": "read",
	})
}

func (t *FileOperationsTool) write(path, content string) *Result {
	if path == "" {
		return Fail("File path is required for write operation.")
	}
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}
	if !t.extensionAllowed(path) {
		return Fail(fmt.Sprintf("File extension not allowed: %s", filepath.Ext(path)))
	}
	if int64(len(content)) > t.maxSize {
		return Fail(fmt.Sprintf("File too large (max %d bytes).", t.maxSize))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Fail(fmt.Sprintf("Failed to write file: %v", err))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Fail(fmt.Sprintf("Failed to write file: %v", err))
	}

	n := utf8.RuneCountInString(content)
	t.logger.Debug("file written", zap.String("path", path), zap.Int("chars", n))
	return Succeed(fmt.Sprintf("Successfully wrote %d characters to %s", n, path), map[string]any{
		"path":      path,
		"size":      n,
		"operation": "write",
	})
}

// FileEntry list 操作返回的目录项
type FileEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size *int64 `json:"size"`
}

func (t *FileOperationsTool) list(path string) *Result {
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fail(fmt.Sprintf("Directory not found: %s", path))
	}
	if err != nil {
		return Fail(fmt.Sprintf("Failed to list directory: %v", err))
	}
	if !info.IsDir() {
		return Fail(fmt.Sprintf("Path is not a directory: %s", path))
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return Fail(fmt.Sprintf("Failed to list directory: %v", err))
	}

	items := make([]FileEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		item := FileEntry{Name: e.Name(), Type: "file"}
		if e.IsDir() {
			item.Type = "directory"
		} else if fi, err := e.Info(); err == nil {
			size := fi.Size()
			item.Size = &size
		}
		items = append(items, item)
	}

	// 目录在前，名称不区分大小写排序
	sort.SliceStable(items, func(i, j int) bool {
		di, dj := items[i].Type == "directory", items[j].Type == "directory"
		if di != dj {
			return di
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	lines := make([]string, 0, len(items))
	for _, item := range items {
		switch {
		case item.Type == "directory":
			lines = append(lines, fmt.Sprintf("📁 %s/", item.Name))
		case item.Size != nil:
			lines = append(lines, fmt.Sprintf("📄 %s (%d bytes)", item.Name, *item.Size))
		default:
			lines = append(lines, fmt.Sprintf("📄 %s", item.Name))
		}
	}
	content := "Directory is empty"
	if len(lines) > 0 {
		content = strings.Join(lines, "\n")
	}

	return Succeed(content, map[string]any{
		"path":       path,
		"item_count": len(items),
		"items":      items,
		"operation":  "list",
	})
}

func (t *FileOperationsTool) mkdir(path string) *Result {
	if path == "" {
		return Fail("Directory path is required for mkdir operation.")
	}
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Fail(fmt.Sprintf("Failed to create directory: %v", err))
	}
	return Succeed(fmt.Sprintf("Directory created: %s", path), map[string]any{
		"path":      path,
		"operation": "mkdir",
	})
}

func (t *FileOperationsTool) exists(path string) *Result {
	if path == "" {
		return Fail("Path is required for exists operation.")
	}
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}

	meta := map[string]any{"path": path, "operation": "exists", "exists": false, "type": nil}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Succeed(fmt.Sprintf("No, path does not exist: %s", path), meta)
	}
	if err != nil {
		return Fail(fmt.Sprintf("Failed to check existence: %v", err))
	}

	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	meta["exists"] = true
	meta["type"] = kind
	return Succeed(fmt.Sprintf("Yes, %s exists: %s", kind, path), meta)
}

func (t *FileOperationsTool) delete(path string) *Result {
	if path == "" {
		return Fail("File path is required for delete operation.")
	}
	if !t.PathAllowed(path) {
		return accessDenied(path)
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fail(fmt.Sprintf("File not found: %s", path))
	}
	if err != nil {
		return Fail(fmt.Sprintf("Failed to delete file: %v", err))
	}
	if info.IsDir() {
		return Fail(fmt.Sprintf("Cannot delete directory with this tool: %s", path))
	}
	if err := os.Remove(path); err != nil {
		return Fail(fmt.Sprintf("Failed to delete file: %v", err))
	}
	return Succeed(fmt.Sprintf("File deleted: %s", path), map[string]any{
		"path":      path,
		"operation": "delete",
	})
}
