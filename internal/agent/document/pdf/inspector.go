package pdf

import (
    "bytes"
    "context"
    "crypto/sha256"
    "encoding/hex"
    "fmt"
    "strings"
    "sync/atomic"
    "time"

    "github.com/ledongthuc/pdf"
    "golang.org/x/sync/errgroup"

    "github.com/feichai0017/pdfshift/internal/compress"
    "github.com/feichai0017/pdfshift/internal/models"
    "github.com/feichai0017/pdfshift/pkg/logger"
)

const defaultInspectWorkers = 4

// Inspector reads document properties and detects text layers.
type Inspector struct {
    logger     logger.Logger
    maxWorkers int
}

func NewInspector(logger logger.Logger) *Inspector {
    return &Inspector{
        logger:     logger,
        maxWorkers: defaultInspectWorkers,
    }
}

func (p *Inspector) CanProcess(mimeType string) bool {
    return mimeType == compress.MediaTypePDF
}

// Inspect never modifies content.
func (p *Inspector) Inspect(ctx context.Context, content []byte) (info models.DocumentInfo, err error) {
    // ledongthuc/pdf panics on some malformed xref tables
    defer func() {
        if r := recover(); r != nil {
            err = fmt.Errorf("inspect pdf: %v", r)
        }
    }()

    reader := bytes.NewReader(content)
    pdfReader, err := pdf.NewReader(reader, reader.Size())
    if err != nil {
        return models.DocumentInfo{}, fmt.Errorf("open pdf: %w", err)
    }

    // 计算文件哈希
    hash := sha256.Sum256(content)
    hashString := hex.EncodeToString(hash[:])

    info = models.DocumentInfo{
        ID:        hashString[:8],
        FileType:  models.PDF,
        FileSize:  int64(len(content)),
        MimeType:  compress.MediaTypePDF,
        Pages:     pdfReader.NumPage(),
        Hash:      hashString,
        CreatedAt: time.Now(),
    }

    trailer := pdfReader.Trailer()
    if !trailer.IsNull() {
        if meta := trailer.Key("Info"); !meta.IsNull() {
            info.Title = textValue(meta, "Title")
            info.Author = textValue(meta, "Author")
            info.Producer = textValue(meta, "Producer")
        }
    }

    textPages, err := p.countTextPages(ctx, pdfReader)
    if err != nil {
        return models.DocumentInfo{}, err
    }
    info.TextPages = textPages

    p.logger.Debug("Inspected PDF",
        logger.String("id", info.ID),
        logger.Int("pages", info.Pages),
        logger.Int("textPages", info.TextPages),
        logger.Bytes("size", info.FileSize),
    )
    return info, nil
}

func (p *Inspector) countTextPages(ctx context.Context, r *pdf.Reader) (int, error) {
    var count atomic.Int32

    g, ctx := errgroup.WithContext(ctx)
    sem := make(chan struct{}, p.maxWorkers)

    for i := 1; i <= r.NumPage(); i++ {
        pageNum := i
        g.Go(func() error {
            select {
            case sem <- struct{}{}:
                defer func() { <-sem }()
            case <-ctx.Done():
                return ctx.Err()
            }

            defer func() {
                if rec := recover(); rec != nil {
                    p.logger.Debug("No text layer",
                        logger.Int("page", pageNum),
                        logger.Any("panic", rec),
                    )
                }
            }()

            page := r.Page(pageNum)
            if page.V.IsNull() {
                return nil
            }
            text, err := page.GetPlainText(nil)
            if err != nil {
                // unreadable font tables count as image-only
                p.logger.Debug("No text layer",
                    logger.Int("page", pageNum),
                    logger.Error(err),
                )
                return nil
            }
            if strings.TrimSpace(text) != "" {
                count.Add(1)
            }
            return nil
        })
    }

    if err := g.Wait(); err != nil {
        return 0, err
    }
    return int(count.Load()), nil
}

func textValue(v pdf.Value, key string) string {
    field := v.Key(key)
    if field.IsNull() {
        return ""
    }
    return strings.TrimSpace(field.Text())
}
