package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/clashsub/internal/pipeline"
	"github.com/John-Robertt/clashsub/internal/render"
	"github.com/John-Robertt/clashsub/internal/sub/uri"
)

// setAttachmentHeaders names the download after the file a one-shot run would
// write, unless the client picked a name.
func setAttachmentHeaders(w http.ResponseWriter, req convertRequest) error {
	filename, err := outputFileName(req)
	if err != nil {
		return err
	}
	// Add both filename and filename* for better UTF-8 compatibility.
	w.Header().Set("Content-Disposition", contentDispositionAttachment(filename))
	return nil
}

func outputFileName(req convertRequest) (string, error) {
	base := req.FileName
	if base == "" {
		return defaultFileName(req.Target), nil
	}
	if strings.ContainsAny(base, "\r\n\x00") {
		return "", requestError("INVALID_ARGUMENT", "fileName 含有非法控制字符", "")
	}
	if strings.Contains(base, "/") || strings.Contains(base, "\\") {
		return "", requestError("INVALID_ARGUMENT", "fileName 不允许包含路径分隔符", "")
	}
	if len(base) > 200 {
		return "", requestError("INVALID_ARGUMENT", "fileName 过长", "max=200 bytes")
	}
	if !hasExt(base) {
		base += defaultExt(req.Target)
	}
	return base, nil
}

func defaultFileName(target string) string {
	switch target {
	case string(render.TargetMeta):
		return pipeline.FileMeta
	case targetNodes:
		return pipeline.FileNodes
	case targetBase64:
		return pipeline.FileSubscription
	default:
		return pipeline.FileClash
	}
}

func hasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

func defaultExt(target string) string {
	switch target {
	case targetNodes:
		return ".json"
	case targetBase64:
		return ".txt"
	default:
		return ".yaml"
	}
}

func contentDispositionAttachment(filename string) string {
	// RFC 6266 + RFC 5987.
	escaped := strings.ReplaceAll(filename, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", escaped, uri.Escape(filename))
}
