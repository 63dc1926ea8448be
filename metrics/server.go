// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package metrics

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Path is where NewServer serves the metrics.
const Path = "/prometheus"

// NewHandler returns a router serving the gatherer's metrics at Path, with
// panic recovery and access logging written to logger.
func NewHandler(gatherer prometheus.Gatherer, logger *logrus.Entry) http.Handler {
	router := mux.NewRouter()
	router.Path(Path).Name("prometheus").Methods(http.MethodGet).Handler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))

	var h http.Handler = router
	if logger != nil {
		w := logger.WriterLevel(logrus.DebugLevel)
		h = handlers.CombinedLoggingHandler(w, h)
	}
	return handlers.RecoveryHandler()(h)
}

// NewServer returns an http.Server for NewHandler listening on addr.
func NewServer(addr string, gatherer prometheus.Gatherer, logger *logrus.Entry) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewHandler(gatherer, logger),
	}
}
