package client

import (
	"net/url"
	"path"
	"strings"

	"github.com/EmilyShepherd/k8s-watch-go/types"
)

// Param is a single query string pair.
type Param struct {
	Key   string
	Value string
}

// RequestParams is an ordered list of query pairs. Unlike url.Values it
// encodes in the order pairs were appended, which keeps watch URLs
// stable and readable.
type RequestParams []Param

// Add appends the pair unless the value is empty.
func (p RequestParams) Add(key, value string) RequestParams {
	if value == "" {
		return p
	}
	return append(p, Param{Key: key, Value: value})
}

// Encode renders the pairs as a query string, preserving order and
// escaping values.
func (p RequestParams) Encode() string {
	var sb strings.Builder
	for i, param := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(param.Key)
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(param.Value))
	}
	return sb.String()
}

// WatchParams assembles the query for a watch call. The watch=true pair
// always comes first; the optional pairs follow in a fixed order and are
// omitted when empty.
func WatchParams(resourceVersion, fieldSelector, labelSelector string) RequestParams {
	p := RequestParams{{Key: "watch", Value: "true"}}
	p = p.Add("resourceVersion", resourceVersion)
	p = p.Add("fieldSelector", fieldSelector)
	p = p.Add("labelSelector", labelSelector)
	return p
}

// ResourceRequest locates a resource collection on the API server.
type ResourceRequest struct {
	GVR       types.GroupVersionResource
	Namespace string
}

// Path returns the collection path, such as /api/v1/namespaces/ns/pods
// or /apis/batch/v1/cronjobs.
func (r ResourceRequest) Path() string {
	var gvrPath string
	if r.GVR.Group == "" {
		gvrPath = path.Join("api", r.GVR.Version)
	} else {
		gvrPath = path.Join("apis", r.GVR.Group, r.GVR.Version)
	}
	var nsPath string
	if r.Namespace != "" {
		nsPath = path.Join("namespaces", r.Namespace)
	}
	return "/" + path.Join(gvrPath, nsPath, r.GVR.Resource)
}
