// Package driver implements Vertica connections and prepared statements on
// top of a backend.Backend.
//
// Statements accept positional (?) or named (:name) placeholders, validate
// the bound parameter count before anything reaches the backend, and fetch
// rows as name-keyed, positional or combined views. Connections expose a
// two-state transaction machine driven by the backend autocommit flag.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapvertica/pkg/backend"
	"github.com/leapstack-labs/leapvertica/pkg/core"
)

// OptODBCDriver names the ODBC driver in generated DSNs.
const OptODBCDriver = "odbc_driver"

// DefaultODBCDriver is used when no odbc_driver option is set.
const DefaultODBCDriver = "vertica"

// Driver opens connections through a backend.
type Driver struct {
	backend   backend.Backend
	transport string
	logger    *slog.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger handed to every connection.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTransport selects the DSN format. Defaults to ODBC.
func WithTransport(transport string) Option {
	return func(d *Driver) {
		if transport != "" {
			d.transport = transport
		}
	}
}

// New creates a driver over b.
func New(b backend.Backend, opts ...Option) *Driver {
	d := &Driver{
		backend:   b,
		transport: core.TransportODBC,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the driver name.
func (d *Driver) Name() string { return d.transport + "_vertica" }

// Backend returns the backend connections are opened on.
func (d *Driver) Backend() backend.Backend { return d.backend }

// Connect opens a connection with p. It fails with a *ConnectError carrying
// the backend's last error when no usable handle is returned.
func (d *Driver) Connect(ctx context.Context, p core.ShardParams) (*Conn, error) {
	dsn := d.DSN(p)
	h, err := d.backend.Connect(ctx, dsn, p.User, p.Password)
	if err != nil || h == nil {
		info := d.backend.LastError(nil)
		return nil, &ConnectError{DSN: dsn, Code: info.Code, Message: info.Message, Err: err}
	}
	conn := NewConn(d.backend, h, d.logger)
	d.logger.Debug("connected", "conn", conn.ID(), "transport", d.transport, "host", p.Host, "dbname", p.DBName)
	return conn, nil
}

// DSN builds the data source name for p. An explicit DSN always wins.
// Credentials are not part of the result; the backend merges them.
func (d *Driver) DSN(p core.ShardParams) string {
	if p.DSN != "" {
		return p.DSN
	}
	switch d.transport {
	case core.TransportVertica:
		return nativeDSN(p)
	case core.TransportPgx:
		return pgxDSN(p)
	case core.TransportDuckDB:
		return p.DBName
	default:
		return odbcDSN(p)
	}
}

// odbcDSN returns Driver=..;Servername=..;Port=..;Database=..; followed by
// the remaining driver options in key order.
func odbcDSN(p core.ShardParams) string {
	var sb strings.Builder
	drv := p.DriverOptions[OptODBCDriver]
	if drv == "" {
		drv = DefaultODBCDriver
	}
	sb.WriteString("Driver=" + drv + ";")
	if p.Host != "" {
		sb.WriteString("Servername=" + p.Host + ";")
	}
	if p.Port != 0 {
		sb.WriteString("Port=" + strconv.Itoa(p.Port) + ";")
	}
	if p.DBName != "" {
		sb.WriteString("Database=" + p.DBName + ";")
	}
	for _, k := range slices.Sorted(maps.Keys(p.DriverOptions)) {
		if k == OptODBCDriver {
			continue
		}
		sb.WriteString(k + "=" + p.DriverOptions[k] + ";")
	}
	return sb.String()
}

func nativeDSN(p core.ShardParams) string {
	u := url.URL{Scheme: "vertica", Host: p.Host, Path: "/" + p.DBName}
	if p.Port != 0 {
		u.Host = p.Host + ":" + strconv.Itoa(p.Port)
	}
	if len(p.DriverOptions) > 0 {
		q := url.Values{}
		for k, v := range p.DriverOptions {
			if k != OptODBCDriver {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func pgxDSN(p core.ShardParams) string {
	var parts []string
	if p.Host != "" {
		parts = append(parts, "host="+p.Host)
	}
	if p.Port != 0 {
		parts = append(parts, "port="+strconv.Itoa(p.Port))
	}
	if p.DBName != "" {
		parts = append(parts, "dbname="+p.DBName)
	}
	for _, k := range slices.Sorted(maps.Keys(p.DriverOptions)) {
		if k != OptODBCDriver {
			parts = append(parts, fmt.Sprintf("%s=%s", k, p.DriverOptions[k]))
		}
	}
	return strings.Join(parts, " ")
}

const redacted = "xxxxx"

func isSecretKey(k string) bool {
	switch strings.ToLower(strings.TrimSpace(k)) {
	case "pwd", "password":
		return true
	}
	return false
}

// RedactDSN masks the password in an ODBC, URL or key/value DSN.
func RedactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return redacted
		}
		q := u.Query()
		for k := range q {
			if isSecretKey(k) {
				q.Set(k, redacted)
			}
		}
		u.RawQuery = q.Encode()
		return u.Redacted()
	}

	sep := " "
	if strings.Contains(dsn, ";") {
		sep = ";"
	}
	parts := strings.Split(dsn, sep)
	for i, part := range parts {
		k, _, ok := strings.Cut(part, "=")
		if ok && isSecretKey(k) {
			parts[i] = k + "=" + redacted
		}
	}
	return strings.Join(parts, sep)
}
