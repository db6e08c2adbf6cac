package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	client "github.com/bhoriuchi/graphql-go-client"
	"github.com/bhoriuchi/graphql-go-client/logger"
	"github.com/bhoriuchi/graphql-go-client/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSubscribeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe [document]",
		Short: "run a subscription and print every result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}

			doc, err := readDocument(cmd, args)
			if err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var reg prometheus.Registerer
			if cfg.MetricsListen != "" {
				r := prometheus.NewRegistry()
				srv := serveMetrics(cfg.MetricsListen, r, log)
				defer srv.Shutdown(context.Background())
				reg = r
			}

			c, err := newClient(cfg, log, reg)
			if err != nil {
				return err
			}
			defer c.Close()

			ch, err := c.Subscribe(ctx, &client.Request{
				Query:         doc,
				OperationName: cfg.OperationName,
				Variables:     cfg.Variables,
			})
			if err != nil {
				return err
			}

			limit := v.GetInt("count")
			received := 0
			for res := range ch {
				if err := printResult(cmd, res); err != nil {
					return err
				}
				received++
				if limit > 0 && received >= limit {
					return nil
				}
			}

			return ctx.Err()
		},
	}

	flags := cmd.Flags()
	flags.Int("count", 0, "exit after this many results, 0 runs until interrupted")
	flags.String("metrics-listen", "", "serve prometheus metrics on addr:port while subscribed")
	v.BindEnv("metrics-listen")
	v.BindPFlags(flags)

	return cmd
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logger.LogWrapper) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", metrics.Handler(reg))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("metrics server failed")
		}
	}()
	log.WithField("addr", addr).Infof("serving metrics")
	return srv
}
