// Copyright 2025 Edgeo SCADA
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

package clock

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// TimeServerConfig configures a TimeServer.
type TimeServerConfig struct {
	// Listen is the TCP address to bind, e.g. "0.0.0.0:1502". Required.
	Listen string

	// SlaveAddress is the unit ID of the clock register bank.
	// Defaults to DefaultSlaveAddress.
	SlaveAddress UnitID

	// PollInterval is the I/O servicing slice of the main loop. It bounds
	// how long a shutdown request can go unnoticed. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
}

// TimeServer owns a Modbus server with one clock slave and the scheduler
// refreshing it. It is constructed once at process start and driven by a
// single control loop; there is no package-level server state.
type TimeServer struct {
	cfg    TimeServerConfig
	srv    *Server
	slave  *Slave
	sched  *Scheduler
	logger *slog.Logger
}

// NewTimeServer creates a clock server from the given configuration.
func NewTimeServer(cfg TimeServerConfig, opts ...ServerOption) (*TimeServer, error) {
	if cfg.Listen == "" {
		return nil, errors.New("clock: listen address required")
	}
	if cfg.SlaveAddress == 0 {
		cfg.SlaveAddress = DefaultSlaveAddress
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	srv := NewServer(opts...)
	slv := srv.Slave(cfg.SlaveAddress)
	sched, err := NewScheduler(slv)
	if err != nil {
		return nil, err
	}

	return &TimeServer{
		cfg:    cfg,
		srv:    srv,
		slave:  slv,
		sched:  sched,
		logger: srv.opts.logger,
	}, nil
}

// Start seeds the offset/DST registers from the host's local time zone and
// opens the listening transport. Called once, before Run.
func (ts *TimeServer) Start() error {
	st := LocalOffsetState(timeNow())
	ts.sched.Seed(st)
	ts.logger.Info("clock state seeded",
		slog.Int("gmt_offset_s", int(st.GMTOffsetSeconds)),
		slog.Bool("dst", st.DSTActive),
		slog.Uint64("slave", uint64(ts.cfg.SlaveAddress)))

	return ts.srv.Open(ts.cfg.Listen)
}

// Run drives the server: it alternates one scheduling decision with one
// bounded I/O servicing slice until the context is cancelled or the server
// is closed. On cancellation it closes the transport and returns nil; a
// refresh in progress always completes before teardown since both happen on
// this goroutine.
func (ts *TimeServer) Run(ctx context.Context) error {
	for ts.srv.IsOpen() {
		select {
		case <-ctx.Done():
			return ts.Close()
		default:
		}

		if ts.sched.Tick(timeNow()) {
			ts.srv.metrics.Refreshes.Add(1)
		}
		ts.srv.Poll(ts.cfg.PollInterval)
	}
	return nil
}

// Close shuts the server down gracefully.
func (ts *TimeServer) Close() error {
	return ts.srv.Close()
}

// Addr returns the bound address, or nil before Start.
func (ts *TimeServer) Addr() net.Addr {
	return ts.srv.Addr()
}

// Slave returns the clock register bank.
func (ts *TimeServer) Slave() *Slave {
	return ts.slave
}

// Metrics returns the server metrics.
func (ts *TimeServer) Metrics() *ServerMetrics {
	return ts.srv.Metrics()
}
