// internal/snapshot/ref.go
package snapshot

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// nodeRef builds an XPath that selects node, anchored on the nearest ancestor
// whose id is unique in the document. It doubles as the element handle handed
// to the executor, so it must select node and nothing else.
func nodeRef(node *html.Node) string {
	if node == nil {
		return ""
	}
	root := node
	for root.Parent != nil {
		root = root.Parent
	}

	var path []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		if id := htmlquery.SelectAttr(n, "id"); id != "" && !strings.Contains(id, "'") {
			anchor := fmt.Sprintf(`//*[@id='%s']`, id)
			if len(htmlquery.Find(root, anchor)) == 1 {
				path = append(path, anchor)
				break
			}
		}

		// XPath indices are 1-based and count same-tag siblings only.
		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	ref := strings.Join(path, "/")
	if !strings.HasPrefix(ref, "//*[@id=") {
		ref = "/" + ref
	}
	return ref
}
