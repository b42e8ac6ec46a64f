package middleware

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/discord-age-gate/internal/config"
	"github.com/iliyamo/discord-age-gate/internal/utils"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }
func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 || cw.size < cw.limit {
		remain := cw.limit - cw.size
		if cw.limit <= 0 {
			cw.buf.Write(b)
		} else if remain > 0 {
			if int64(len(b)) <= remain {
				cw.buf.Write(b)
			} else {
				cw.buf.Write(b[:remain])
			}
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// StatusCache keeps successful status lookups in redis for a short TTL so a
// polling bot does not hit the database on every request. A nil or disabled
// cache passes everything through.
type StatusCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
	log logrus.FieldLogger
}

// NewStatusCache returns a cache backed by rdb. rdb may be nil.
func NewStatusCache(cfg config.CacheConfig, rdb *redis.Client, log logrus.FieldLogger) *StatusCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "status"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StatusCache{cfg: cfg, rdb: rdb, log: log.WithField("component", "status-cache")}
}

func (s *StatusCache) enabled() bool {
	return s != nil && s.cfg.Enabled && s.rdb != nil
}

// Key is the redis key holding the cached response for a decoded path
// such as /status/token/a,b.
func (s *StatusCache) Key(path string) string {
	return s.cfg.Prefix + ":" + path
}

// generationKey counts invalidations of key. A fill only lands when the
// count did not move while the handler ran.
func generationKey(key string) string {
	return key + "#gen"
}

var errInvalidated = errors.New("invalidated during request")

// resolvedPath rebuilds the request path from the matched route and the
// decoded parameters, so every spelling of the same URL shares one key.
func resolvedPath(c echo.Context) (string, bool) {
	path := c.Path()
	for _, name := range c.ParamNames() {
		v, err := utils.PathParam(c, name)
		if err != nil {
			return "", false
		}
		path = strings.Replace(path, ":"+name, v, 1)
	}
	return path, path != ""
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, g getter, genKey string) (int64, error) {
	n, err := g.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Middleware serves cached 200 responses and stores fresh ones.
func (s *StatusCache) Middleware() echo.MiddlewareFunc {
	if !s.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	maxBody := int64(s.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			path, ok := resolvedPath(c)
			if !ok {
				return next(c)
			}
			ctx := c.Request().Context()
			key := s.Key(path)

			bs, err := s.rdb.Get(ctx, key).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				s.log.WithError(err).Debug("cache read failed")
			}
			if err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			// read before the handler touches the database
			gen, genErr := readGeneration(ctx, s.rdb, generationKey(key))

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			// truncated bodies are not worth serving
			if genErr != nil || cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			err = s.fill(context.WithoutCancel(ctx), key, gen, payload)
			if err != nil && !errors.Is(err, errInvalidated) {
				s.log.WithError(err).Debug("cache write failed")
			}
			return nil
		}
	}
}

// fill stores payload unless key was invalidated after gen was read.
func (s *StatusCache) fill(ctx context.Context, key string, gen int64, payload []byte) error {
	genKey := generationKey(key)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if cur != gen {
			return errInvalidated
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, payload, s.cfg.TTL)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return errInvalidated
	}
	return err
}

// Invalidate drops the cached responses for the given decoded paths and
// bumps their generation so fills already in flight are discarded.
func (s *StatusCache) Invalidate(ctx context.Context, paths ...string) error {
	if !s.enabled() || len(paths) == 0 {
		return nil
	}
	// outlive any request that could still be filling
	genTTL := s.cfg.TTL + time.Minute
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, path := range paths {
			key := s.Key(path)
			p.Incr(ctx, generationKey(key))
			p.Expire(ctx, generationKey(key), genTTL)
			p.Del(ctx, key)
		}
		return nil
	})
	return errors.Wrap(err, "invalidate status cache")
}
