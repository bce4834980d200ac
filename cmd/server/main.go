// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragflow-bridge/internal/config"
	"ragflow-bridge/pkg/log"
	"ragflow-bridge/pkg/token"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "ragflow-bridge",
		Short:        "RAGFlow 知识库管理服务",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "配置文件路径")
	root.AddCommand(serveCmd(), workerCmd(), refreshCmd(), hashKeyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志记录器。
func setup() config.Config {
	config.Init(configPath)
	cfg := config.Conf
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	log.Info("日志记录器初始化成功")
	return cfg
}

// signalContext 在收到 SIGINT/SIGTERM 时取消。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务，按配置同时运行状态同步消费者",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setup()
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()

			app := newApplication(ctx, cfg)
			defer app.close()

			if cfg.Kafka.Enabled && cfg.Kafka.ConsumerEnabled {
				go func() {
					if err := app.consumer().Run(ctx); err != nil {
						log.Error("Kafka 消费者异常退出", err)
					}
				}()
			}

			srv := &http.Server{
				Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
				Handler: app.router(),
			}
			go func() {
				log.Infof("服务启动于 %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("HTTP 服务监听失败: %s", err)
				}
			}()

			<-ctx.Done()
			log.Info("接收到停机信号，正在关闭服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
			}
			log.Info("服务已优雅关闭")
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "只运行文档状态同步消费者",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setup()
			defer log.Sync()
			if !cfg.Kafka.Enabled {
				return errors.New("kafka.enabled 为 false，无法启动消费者")
			}

			ctx, stop := signalContext()
			defer stop()

			app := newApplication(ctx, cfg)
			defer app.close()
			return app.consumer().Run(ctx)
		},
	}
}

func refreshCmd() *cobra.Command {
	var datasetID uint
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "刷新所有处于解析中的文档状态后退出",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := setup()
			defer log.Sync()

			ctx, stop := signalContext()
			defer stop()

			app := newApplication(ctx, cfg)
			defer app.close()

			res, err := app.documents.RefreshProcessing(ctx, datasetID)
			if err != nil {
				return err
			}
			log.Infow("文档状态刷新完成",
				"total", res.Total,
				"refreshed", res.Refreshed,
				"completed", res.Completed,
				"failed", res.Failed,
				"errors", len(res.Errors),
			)
			for _, e := range res.Errors {
				log.Warnf("文档 %s 刷新失败: %s", e.Item, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().UintVar(&datasetID, "dataset", 0, "只刷新指定数据集，0 表示全部")
	return cmd
}

// hashKeyCmd 生成写入 auth.api_keys 的 bcrypt 哈希。
func hashKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "生成 API Key 的 bcrypt 哈希",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := token.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}
