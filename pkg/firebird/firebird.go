// Package firebird reads rows from the legacy Firebird database.
//
// The connection is opened with charset NONE so text columns arrive as the
// raw bytes stored on disk. They are decoded here with the configured legacy
// charset.
package firebird

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"licensing-controlplane/pkg/config"

	_ "github.com/nakagami/firebirdsql"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

type Options struct {
	Host     string
	Port     int
	Path     string
	User     string
	Password string
	Charset  string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Host:     cfg.Legacy.Host,
		Port:     cfg.Legacy.Port,
		Path:     cfg.Legacy.Path,
		User:     cfg.Legacy.User,
		Password: cfg.Legacy.Password,
		Charset:  cfg.Legacy.Charset,
	}
}

// DSN renders the firebirdsql connection string.
func (o Options) DSN() string {
	host := o.Host
	if o.Port > 0 {
		host = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	}
	path := strings.TrimPrefix(o.Path, "/")
	return fmt.Sprintf("%s:%s@%s/%s?charset=NONE", o.User, o.Password, host, path)
}

// Row is one result row. A nil entry is a SQL NULL.
type Row []*string

type Reader struct {
	opts    Options
	decoder *encoding.Decoder
}

func NewReader(opts Options) (*Reader, error) {
	enc, err := Encoding(opts.Charset)
	if err != nil {
		return nil, err
	}
	return &Reader{opts: opts, decoder: enc.NewDecoder()}, nil
}

// Encoding maps a Firebird character set name to its decoder.
func Encoding(charset string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(charset)) {
	case "", "UTF8", "UNICODE_FSS", "NONE":
		return unicode.UTF8, nil
	case "WIN1250":
		return charmap.Windows1250, nil
	case "WIN1251":
		return charmap.Windows1251, nil
	case "WIN1252":
		return charmap.Windows1252, nil
	case "ISO8859_1":
		return charmap.ISO8859_1, nil
	case "ISO8859_15":
		return charmap.ISO8859_15, nil
	case "DOS850":
		return charmap.CodePage850, nil
	default:
		return nil, fmt.Errorf("unsupported legacy charset %q", charset)
	}
}

// Query runs query and returns every row with text decoded.
func (r *Reader) Query(ctx context.Context, query string) ([]Row, error) {
	db, err := sql.Open("firebirdsql", r.opts.DSN())
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("connect legacy database %s: %w", r.opts.Host, err)
	}
	zap.L().Info("connected to legacy database", zap.String("host", r.opts.Host), zap.String("path", r.opts.Path))

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query legacy database: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		raw := make([]sql.RawBytes, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan legacy row: %w", err)
		}

		row := make(Row, len(cols))
		for i, b := range raw {
			if b == nil {
				continue
			}
			s, err := r.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("decode column %s: %w", cols[i], err)
			}
			row[i] = &s
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Reader) Decode(b []byte) (string, error) {
	out, err := r.decoder.Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
