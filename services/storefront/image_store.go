package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const productImagesDir = "products"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImageStore grava e remove as imagens de produto servidas em /products
type ImageStore interface {
	Save(ctx context.Context, filename string, content io.Reader) (string, error)
	Remove(ctx context.Context, imagePath string)
}

// DiskImageStore grava as imagens no diretório público do serviço
type DiskImageStore struct {
	publicDir string
	logger    *zap.Logger
}

// NewDiskImageStore cria uma nova instância de DiskImageStore
func NewDiskImageStore(publicDir string, logger *zap.Logger) *DiskImageStore {
	return &DiskImageStore{publicDir: publicDir, logger: logger}
}

// Save valida o conteúdo como imagem e devolve o caminho público (/products/<arquivo>)
func (s *DiskImageStore) Save(ctx context.Context, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return "", ErrInvalidImage
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrInvalidImage, mtype.String())
	}

	dir := filepath.Join(s.publicDir, productImagesDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s", uuid.New().String(), sanitizeFilename(filename, mtype.Extension()))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	logInfo(ctx, s.logger, "✅ [IMAGE] stored", zap.String("file", name), zap.String("mime", mtype.String()))
	return path.Join("/", productImagesDir, name), nil
}

// Remove apaga a imagem se ela existir; falhas são apenas registradas
func (s *DiskImageStore) Remove(ctx context.Context, imagePath string) {
	if imagePath == "" {
		return
	}

	name := path.Base(imagePath)
	if name == "/" || name == "." || !strings.HasPrefix(imagePath, "/"+productImagesDir+"/") {
		logWarn(ctx, s.logger, "⚠️ [IMAGE] refusing to remove path outside products", zap.String("path", imagePath))
		return
	}

	err := os.Remove(filepath.Join(s.publicDir, productImagesDir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logWarn(ctx, s.logger, "⚠️ [IMAGE] failed to remove", zap.String("path", imagePath), zap.Error(err))
	}
}

func sanitizeFilename(filename, fallbackExt string) string {
	base := unsafeFileChars.ReplaceAllString(filepath.Base(filename), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "image" + fallbackExt
	}
	return base
}
