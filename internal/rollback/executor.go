// Package rollback implements the Rollback Executor: it opens an
// interactive remote shell session to the production host, uploads a
// generated shell plan, starts it detached, and returns — the plan itself
// reports progress back into the Engine via ordinary Update/PATCH calls.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/gommgo/release-machine/internal/release"
	"github.com/gommgo/release-machine/pkg/logger"
)

// Config configures the Executor's remote session and plan generation.
type Config struct {
	ProductionHost     string
	ProductionUser     string
	ProductionPassword string
	ConnectTimeout     time.Duration
	CallbackBaseURL    string
	// Targets maps service_name -> {port, prefix} for health-probing after
	// the plan rebuilds the container.
	Targets map[string]ServiceTarget
}

// nowFunc is overridden in tests for deterministic script filenames.
var nowFunc = func() time.Time { return time.Now() }

// Executor implements release.RollbackLauncher over an SSH/SFTP remote
// session. Host-key verification is intentionally disabled per spec.md
// §4.3 (operator-controlled environment).
type Executor struct {
	cfg    Config
	lock   *Lock
	logger *slog.Logger
	dial   func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// New builds an Executor. lock may be nil to skip the Redis-backed
// cross-replica guard (tests, or single-instance deployments that rely
// solely on the Engine's own status check).
func New(cfg Config, lock *Lock, logger *slog.Logger) *Executor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:    cfg,
		lock:   lock,
		logger: logger,
		dial:   dialSSH,
	}
}

func dialSSH(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	conn, err := net.DialTimeout(network, addr, config.Timeout)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// Launch implements release.RollbackLauncher: it renders the shell plan for
// r's service moving to rollbackToTag, opens an SSH session to the
// production host, uploads the plan over SFTP, makes it executable, and
// starts it detached with nohup. It returns as soon as the launch succeeds
// — it never waits for the plan to finish.
func (e *Executor) Launch(ctx context.Context, r *release.Release, rollbackToTag string) error {
	if e.lock != nil {
		if err := e.lock.Acquire(ctx, r.ServiceName); err != nil {
			return &LaunchError{Stage: "lock", Err: err}
		}
		defer e.lock.Release(ctx, r.ServiceName)
	}

	target, ok := e.cfg.Targets[r.ServiceName]
	if !ok {
		return &LaunchError{Stage: "connect", Err: fmt.Errorf("no port/prefix configured for service %q", r.ServiceName)}
	}

	plan, err := RenderPlan(PlanParams{
		ReleaseID:       r.ID,
		ServiceName:     r.ServiceName,
		TargetTag:       rollbackToTag,
		Port:            target.Port,
		Prefix:          target.Prefix,
		CallbackBaseURL: e.cfg.CallbackBaseURL,
	})
	if err != nil {
		return &LaunchError{Stage: "connect", Err: err}
	}

	scriptPath := ScriptPath(r.ServiceName, rollbackToTag, nowFunc().Unix())

	sshCfg := &ssh.ClientConfig{
		User:            e.cfg.ProductionUser,
		Auth:            []ssh.AuthMethod{ssh.Password(e.cfg.ProductionPassword)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(e.cfg.ProductionHost, "22")
	client, err := e.dial("tcp", addr, sshCfg)
	if err != nil {
		logger.WithRelease(e.logger, r.ID).Error("rollback ssh connect failed", "service", r.ServiceName, "error", err)
		return &LaunchError{Stage: "connect", Err: err}
	}
	defer client.Close()

	if err := e.upload(client, scriptPath, plan); err != nil {
		logger.WithRelease(e.logger, r.ID).Error("rollback plan upload failed", "service", r.ServiceName, "error", err)
		return &LaunchError{Stage: "upload", Err: err}
	}

	if err := e.startDetached(client, scriptPath); err != nil {
		logger.WithRelease(e.logger, r.ID).Error("rollback plan launch failed", "service", r.ServiceName, "error", err)
		return &LaunchError{Stage: "start", Err: err}
	}

	logger.WithRelease(e.logger, r.ID).Info("rollback plan launched", "service", r.ServiceName, "target_tag", rollbackToTag, "script", scriptPath)
	return nil
}

func (e *Executor) upload(client *ssh.Client, path, contents string) error {
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("open sftp client: %w", err)
	}
	defer sftpClient.Close()

	f, err := sftpClient.Create(path)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(contents)); err != nil {
		return fmt.Errorf("write remote file: %w", err)
	}
	return nil
}

// startDetached chmods the plan executable and launches it with nohup over
// a fresh SSH session, then closes the session immediately — the running
// plan outlives this session and reports progress via PATCH calls of its
// own (spec.md §6.3).
func (e *Executor) startDetached(client *ssh.Client, scriptPath string) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("open ssh session: %w", err)
	}
	defer session.Close()

	command := fmt.Sprintf("chmod +x %s && nohup bash %s > /dev/null 2>&1 &", scriptPath, scriptPath)
	return session.Run(command)
}
