package httpapi

import (
	"net/http"

	"github.com/John-Robertt/clashsub/internal/model"
)

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "ok\n")
}

func (s *server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, apiError(http.StatusNotFound, model.AppError{
		Code:    "NOT_FOUND",
		Message: "接口不存在",
		Stage:   "validate_request",
	}, nil))
}

func (s *server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, apiError(http.StatusMethodNotAllowed, model.AppError{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "不支持的请求方法：" + r.Method,
		Stage:   "validate_request",
	}, nil))
}
