package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/dmarcwatch/dmarcwatch/config"
	"github.com/dmarcwatch/dmarcwatch/interfaces"
	er "github.com/dmarcwatch/dmarcwatch/internal/errors"
	"github.com/dmarcwatch/dmarcwatch/internal/logger"
	"github.com/dmarcwatch/dmarcwatch/internal/tracing"
	"github.com/dmarcwatch/dmarcwatch/services/mime"
)

const (
	connectTimeout = 30 * time.Second
	logoutTimeout  = 10 * time.Second
)

// Collector opens one short-lived mailbox session per pipeline run. Nothing
// is cached between runs; every session owns its connection outright.
type Collector struct {
	cfg       *config.IMAPConfig
	log       logger.Logger
	extractor *mime.Extractor
}

func NewCollector(cfg *config.IMAPConfig, log logger.Logger, extractor *mime.Extractor) interfaces.IMAPCollector {
	return &Collector{
		cfg:       cfg,
		log:       log,
		extractor: extractor,
	}
}

func (s *Collector) OpenSession(ctx context.Context) (interfaces.CollectorSession, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Collector.OpenSession")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("server", s.cfg.Host)
	span.SetTag("port", s.cfg.Port)
	span.SetTag("folder", s.cfg.Folder)

	c, err := s.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &collectorSession{
		client:    c,
		log:       s.log,
		extractor: s.extractor,
	}, nil
}

func (s *Collector) connect(ctx context.Context) (*client.Client, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Collector.connect")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
	}

	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrConnectionFailed, "failed to connect to %s: %v", serverAddr, err)
	}

	c.Timeout = connectTimeout

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrAuthenticationFailed, "login as %s rejected: %v", s.cfg.Username, err)
	}

	if _, err := c.Select(s.cfg.Folder, false); err != nil {
		c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(er.ErrConnectionFailed, "failed to select folder %s: %v", s.cfg.Folder, err)
	}

	// No timeout on normal operations; individual commands bound themselves.
	c.Timeout = 0

	s.log.Infof("connected to imap server %s, folder %s", serverAddr, s.cfg.Folder)
	return c, nil
}
