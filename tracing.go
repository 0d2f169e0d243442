// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chainrelay

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// setupTracing configures the OTel SDK with an OTLP-HTTP exporter (and
// optionally a stdout exporter) and registers the shutdown functions
func (r *Relay) setupTracing() error {
	ctx := context.Background()

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	traceRes, err := resource.New(
		ctx,
		resource.WithAttributes(
			semconv.ServiceName("chainrelay"),
		),
	)
	if err != nil {
		return err
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(traceRes),
	}
	// Exporters are configurable via the OTEL_EXPORTER_OTLP_* env vars
	otlpExporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return err
	}
	opts = append(opts, trace.WithBatcher(otlpExporter))
	if r.config.tracingStdout {
		stdoutExporter, err := stdouttrace.New(
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return err
		}
		opts = append(opts, trace.WithBatcher(stdoutExporter))
	}

	tracerProvider := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tracerProvider)
	r.shutdownFuncs = append(
		r.shutdownFuncs,
		func(ctx context.Context) error {
			return errors.Join(
				tracerProvider.ForceFlush(ctx),
				tracerProvider.Shutdown(ctx),
			)
		},
	)
	return nil
}
