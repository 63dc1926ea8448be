// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vmware/stompclient-go/client"
	"github.com/vmware/stompclient-go/config"
	"github.com/vmware/stompclient-go/log"
	"github.com/vmware/stompclient-go/metrics"
	"github.com/vmware/stompclient-go/monitor"
	"github.com/vmware/stompclient-go/transport"
)

// app holds what every command needs once the configuration is loaded.
type app struct {
	configFile string

	settings *config.Settings
	logger   *logrus.Entry
	client   *client.Client
	monitor  *monitor.MonitorStream
	metrics  *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "stompcli",
		Short:         "Talk to a STOMP broker over WebSocket or TCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.shutdown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "configuration file (yaml or json)")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newSubscribeCmd(a), newSendCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	settings, err := config.Load(a.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	logger, err := log.New(&settings.Log)
	if err != nil {
		return err
	}
	a.settings = settings
	a.logger = log.NewEntry(logger, "stompcli")

	factory, err := newFactory(settings.URL)
	if err != nil {
		return err
	}

	cfg := settings.ClientConfig(a.logger)
	if settings.Metrics.Address != "" {
		registry := prometheus.NewRegistry()
		collector := metrics.New(settings.Metrics.Namespace)
		if err := collector.Register(registry); err != nil {
			return err
		}
		cfg.Metrics = collector
		a.metrics = metrics.NewServer(settings.Metrics.Address, registry, a.logger)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("metrics server stopped")
			}
		}()
		a.logger.Infof("serving metrics on %s%s", settings.Metrics.Address, metrics.Path)
	}

	a.monitor = monitor.NewMonitorStream(64)
	cfg.Monitor = a.monitor
	go a.logMonitorEvents()

	a.client = client.New(factory, cfg)
	return nil
}

func (a *app) logMonitorEvents() {
	for evt := range a.monitor.Stream {
		entry := a.logger.WithField("event", evt.EventType.String())
		if evt.Destination != "" {
			entry = entry.WithField("destination", evt.Destination)
		}
		if evt.Err != nil {
			entry = entry.WithError(evt.Err)
		}
		entry.WithField("attempt", evt.Attempt).Debug("connection event")
	}
}

func (a *app) shutdown() {
	if a.client != nil {
		a.client.Disconnect()
	}
	if a.metrics != nil {
		a.metrics.Shutdown(context.Background())
	}
	if a.monitor != nil {
		a.monitor.Close()
	}
}

// newFactory picks the transport from the url scheme.
func newFactory(rawURL string) (transport.Factory, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid url '%s'", rawURL)
	}
	switch u.Scheme {
	case "ws", "wss":
		return transport.NewWebSocketFactory(rawURL, nil, nil), nil
	case "tcp", "stomp":
		return transport.NewTCPFactory(hostPort(u, "61613"), nil), nil
	case "ssl", "stomp+ssl", "tls":
		return transport.NewTCPFactory(hostPort(u, "61614"), &tls.Config{}), nil
	}
	return nil, errors.Errorf("unsupported url scheme '%s'", u.Scheme)
}

func hostPort(u *url.URL, defaultPort string) string {
	if u.Port() != "" {
		return u.Host
	}
	return net.JoinHostPort(u.Hostname(), defaultPort)
}
