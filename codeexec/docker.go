package codeexec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// DefaultDockerImages 各语言默认镜像
var DefaultDockerImages = map[Language]string{
	LangPython:     "python:3.12-slim",
	LangJavaScript: "node:20-slim",
	LangBash:       "bash:5",
}

// dockerAPI DockerBackend 用到的 Docker 客户端子集
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspect(ctx context.Context, image string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, container string, options container.StartOptions) error
	ContainerWait(ctx context.Context, container string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, container string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, container string, options container.RemoveOptions) error
	Close() error
}

// DockerBackend 在一次性容器中运行代码
type DockerBackend struct {
	client dockerAPI
	images map[Language]string
	logger *zap.Logger
}

// NewDockerBackend 使用环境变量中的 Docker 配置创建后端
func NewDockerBackend(logger *zap.Logger) (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerBackend(cli, logger), nil
}

func newDockerBackend(api dockerAPI, logger *zap.Logger) *DockerBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	images := make(map[Language]string, len(DefaultDockerImages))
	for k, v := range DefaultDockerImages {
		images[k] = v
	}
	return &DockerBackend{
		client: api,
		images: images,
		logger: logger.With(zap.String("backend", "docker")),
	}
}

func (d *DockerBackend) Name() string { return "docker" }

func (d *DockerBackend) Supports(lang Language) bool {
	_, ok := d.images[lang]
	return ok
}

// Ping 检查 Docker 守护进程是否可用
func (d *DockerBackend) Ping(ctx context.Context) error {
	_, err := d.client.Ping(ctx)
	return err
}

func (d *DockerBackend) imageFor(lang Language, cfg Config) string {
	if img, ok := cfg.DockerImages[string(lang)]; ok && img != "" {
		return img
	}
	return d.images[lang]
}

func dockerCommand(lang Language, code string) []string {
	switch lang {
	case LangPython:
		return []string{"python3", "-c", code}
	case LangJavaScript:
		return []string{"node", "-e", code}
	default:
		return []string{"bash", "-c", code}
	}
}

// ContainerSpec 构造容器配置：无网络（除非显式开启）、只读根文件系统、资源受限
func ContainerSpec(lang Language, code, imageName string, cfg Config) (*container.Config, *container.HostConfig) {
	env := []string{"HOME=/tmp", "PYTHONDONTWRITEBYTECODE=1"}
	containerCfg := &container.Config{
		Image:           imageName,
		Cmd:             dockerCommand(lang, code),
		Env:             env,
		WorkingDir:      "/tmp",
		User:            "65534:65534",
		NetworkDisabled: !cfg.EnableNetwork,
		AttachStdout:    true,
		AttachStderr:    true,
	}

	pids := int64(64)
	hostCfg := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		Tmpfs:          map[string]string{"/tmp": "rw,size=16m"},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Resources: container.Resources{
			Memory:    int64(cfg.MaxMemoryMB) * 1024 * 1024,
			NanoCPUs:  1e9,
			PidsLimit: &pids,
		},
	}
	if cfg.EnableNetwork {
		hostCfg.NetworkMode = "bridge"
	}
	return containerCfg, hostCfg
}

func (d *DockerBackend) ensureImage(ctx context.Context, ref string) error {
	if _, err := d.client.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image: %w", err)
	}

	d.logger.Info("pulling image", zap.String("image", ref))
	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *DockerBackend) Run(ctx context.Context, req *Request) (*RunOutput, error) {
	ref := d.imageFor(req.Language, req.Config)
	if ref == "" {
		return nil, fmt.Errorf("no image for language: %s", req.Language)
	}
	if err := d.ensureImage(ctx, ref); err != nil {
		return nil, err
	}

	containerCfg, hostCfg := ContainerSpec(req.Language, req.Code, ref, req.Config)
	resp, err := d.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	id := resp.ID

	// 容器在函数返回时强制删除，超时时同样会终止其中进程
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.client.ContainerRemove(rmCtx, id, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Warn("remove container failed", zap.String("container", id), zap.Error(err))
		}
	}()

	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	waitCh, errCh := d.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case res := <-waitCh:
		if res.Error != nil && res.Error.Message != "" {
			return nil, fmt.Errorf("container wait: %s", res.Error.Message)
		}
		exitCode = int(res.StatusCode)
	case err := <-errCh:
		if ctx.Err() != nil {
			return &RunOutput{ExitCode: -1, TimedOut: true}, ctx.Err()
		}
		return nil, fmt.Errorf("container wait: %w", err)
	case <-ctx.Done():
		return &RunOutput{ExitCode: -1, TimedOut: true}, ctx.Err()
	}

	logCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logs, err := d.client.ContainerLogs(logCtx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("failed to read logs: %w", err)
	}
	return &RunOutput{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}, nil
}

func (d *DockerBackend) Close() error { return d.client.Close() }
