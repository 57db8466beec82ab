package render

import (
	"encoding/base64"
	"strings"

	"github.com/John-Robertt/clashsub/internal/model"
	"github.com/John-Robertt/clashsub/internal/sub"
)

// Subscription re-serialises nodes to links (with their final names), joins
// them with "\n" and returns the standard base64 of the result.
func Subscription(nodes []model.Node) (string, error) {
	links := make([]string, 0, len(nodes))
	for _, n := range nodes {
		link, err := sub.Encode(n)
		if err != nil {
			return "", &RenderError{
				AppError: model.AppError{
					Code:    "RENDER_ERROR",
					Message: "节点无法转换为订阅链接",
					Stage:   "render",
					Snippet: n.Name,
				},
				Cause: err,
			}
		}
		links = append(links, link)
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(links, "\n"))), nil
}
