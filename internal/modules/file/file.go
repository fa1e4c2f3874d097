// Package file hands out signed upload policies and serves the objects
// uploaded with them.
package file

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hanpama/graphcms/internal/authz"
	"github.com/hanpama/graphcms/internal/errs"
	"github.com/hanpama/graphcms/internal/registry"
	"github.com/hanpama/graphcms/internal/store"
)

var extPattern = regexp.MustCompile(`^[a-z0-9]+$`)

type Options struct {
	Secret []byte
	// Expiry is how long a policy stays valid. Default 30m.
	Expiry time.Duration
	// Tolerance widens the accepted size range on both sides. Default 50.
	Tolerance int64
	// PublicURL prefixes the upload and download URLs handed to clients.
	PublicURL string
}

// UploadPolicy tells a client where and how to post a file.
type UploadPolicy struct {
	PostURL  string         `json:"postURL"`
	FormData map[string]any `json:"formData"`
}

type Module struct {
	objects   store.ObjectStore
	signer    *Signer
	tolerance int64
	publicURL string
	log       zerolog.Logger
}

func New(objects store.ObjectStore, opts Options, log zerolog.Logger) *Module {
	if opts.Tolerance <= 0 {
		opts.Tolerance = 50
	}
	log = log.With().Str("component", "file").Logger()
	if len(opts.Secret) == 0 {
		// policies signed with an empty key could be forged by anyone
		opts.Secret = []byte(rand.Text())
		log.Warn().Msg("upload.secret not set, using a per-process secret; policies expire on restart")
	}
	return &Module{
		objects:   objects,
		signer:    NewSigner(opts.Secret, opts.Expiry),
		tolerance: opts.Tolerance,
		publicURL: strings.TrimSuffix(opts.PublicURL, "/"),
		log:       log,
	}
}

// RequestUpload issues a policy for a new object of roughly size bytes.
func (m *Module) RequestUpload(ctx context.Context, size int64, ext string) (*UploadPolicy, error) {
	if size <= 0 {
		return nil, errs.Invalid("size", "must be positive")
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if !extPattern.MatchString(ext) {
		return nil, errs.Invalid("ext", "must match %s", extPattern)
	}
	name := uuid.NewString() + "." + ext
	subject := ""
	if id, ok := authz.FromContext(ctx); ok {
		subject = id.Username
	}
	lo := size - m.tolerance
	if lo < 0 {
		lo = 0
	}
	token, exp, err := m.signer.Sign(name, subject, lo, size+m.tolerance)
	if err != nil {
		return nil, err
	}
	return &UploadPolicy{
		PostURL: m.publicURL + "/upload",
		FormData: map[string]any{
			"key":     name,
			"policy":  token,
			"expires": exp.Format(time.RFC3339),
		},
	}, nil
}

func (m *Module) Delete(ctx context.Context, name string) (bool, error) {
	err := m.objects.Delete(ctx, name)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *Module) Register(reg *registry.SchemaRegistry) {
	reg.DeclareFields("UploadPolicy",
		registry.Field{Name: "postURL", Type: "String!"},
		registry.Field{Name: "formData", Type: "JSON!", Description: "Fields to send with the multipart upload."},
	)
	reg.DeclareResolver("Query", "file", "FileContext", registry.Namespace)
	reg.DeclareResolver("FileContext", "requestUpload(size: Int!, ext: String!)", "UploadPolicy @auth(requires: USER)", func(ctx context.Context, in registry.Input) (any, error) {
		return m.RequestUpload(ctx, int64(in.Int("size", 0)), in.String("ext"))
	})
	reg.DeclareResolver("FileContext", "del(filename: String!)", "Boolean! @auth", func(ctx context.Context, in registry.Input) (any, error) {
		return m.Delete(ctx, in.String("filename"))
	})
}

// Routes mounts the upload and download handlers.
func (m *Module) Routes(r chi.Router) {
	r.Post("/upload", m.upload)
	r.Get("/files/{name}", m.download)
}

const maxMemory = 8 << 20

func (m *Module) upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	p, err := m.signer.Verify(r.FormValue("policy"))
	if err != nil {
		m.log.Debug().Err(err).Msg("upload policy rejected")
		httpError(w, http.StatusForbidden, "invalid or expired policy")
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer f.Close()
	if hdr.Size < p.MinSize || hdr.Size > p.MaxSize {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("file size %d outside [%d, %d]", hdr.Size, p.MinSize, p.MaxSize))
		return
	}
	ct := hdr.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(p.Name)); byExt != "" {
			ct = byExt
		}
	}
	info := store.ObjectInfo{Name: p.Name, Size: hdr.Size, ContentType: ct}
	if err := m.objects.Put(r.Context(), info, f); err != nil {
		m.log.Error().Err(err).Str("name", p.Name).Msg("store upload")
		httpError(w, http.StatusServiceUnavailable, "object store unavailable")
		return
	}
	m.log.Info().Str("name", p.Name).Int64("size", hdr.Size).Str("uploader", p.Subject).Msg("file uploaded")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"name": p.Name,
		"url":  m.publicURL + "/files/" + p.Name,
	})
}

func (m *Module) download(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	body, info, err := m.objects.Get(r.Context(), name)
	if errors.Is(err, errs.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		m.log.Error().Err(err).Str("name", name).Msg("read object")
		httpError(w, http.StatusServiceUnavailable, "object store unavailable")
		return
	}
	defer body.Close()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		m.log.Warn().Err(err).Str("name", name).Msg("stream object")
	}
}

func httpError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
