package vanity

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// gopkgCandidates builds the gopkg.in/vN convention candidates: the
// canonical github.com/go-<name>/<name> form plus a small list of
// variants, sorted lexically by URL so re-runs are stable. The major
// version does not affect the candidates or their order.
func gopkgCandidates(modulePath string) []Candidate {
	rest := strings.TrimPrefix(modulePath, "gopkg.in/")
	segments := strings.SplitN(rest, "/", 2)
	head := segments[0]

	name, _ := splitMajorSuffix(head)
	if name == "" {
		return nil
	}

	variants := []string{
		"github.com/go-" + name + "/" + name,
		"github.com/" + name + "/" + name,
	}
	if strings.Contains(name, ".") {
		variants = append(variants, "github.com/"+strings.ReplaceAll(name, ".", "-")+"/"+strings.ReplaceAll(name, ".", "-"))
	}

	sort.Strings(variants)

	candidates := make([]Candidate, 0, len(variants))
	for _, v := range variants {
		candidates = append(candidates, Candidate{URL: "https://" + v})
	}
	return candidates
}

// splitMajorSuffix splits "yaml.v3" into ("yaml", 3); a bare name with no
// ".vN" suffix returns (name, 0).
func splitMajorSuffix(head string) (name string, major int) {
	idx := strings.LastIndex(head, ".v")
	if idx < 0 {
		return head, 0
	}
	suffix := head[idx+2:]
	v, err := semver.NewVersion(suffix + ".0.0")
	if err != nil {
		return head, 0
	}
	return head[:idx], int(v.Major())
}

// googleAPICandidates returns a fixed mirror table for
// protobuf/grpc/genproto/api, defaulting to github.com/golang/<pkg> with
// the multi-module sub-path preserved (e.g.
// google.golang.org/grpc/cmd/protoc-gen-go-grpc).
func googleAPICandidates(modulePath string) []Candidate {
	rest := strings.TrimPrefix(modulePath, "google.golang.org/")
	segments := strings.SplitN(rest, "/", 2)
	pkg := segments[0]
	subdir := ""
	if len(segments) > 1 {
		subdir = segments[1]
	}

	mirrors := map[string]string{
		"protobuf": "protocolbuffers/protobuf-go",
		"grpc":     "grpc/grpc-go",
		"genproto": "googleapis/go-genproto",
		"api":      "googleapis/google-api-go-client",
	}

	ownerRepo, ok := mirrors[pkg]
	if !ok {
		ownerRepo = "golang/" + pkg
	}

	return []Candidate{{URL: "https://github.com/" + ownerRepo, Subdir: subdir}}
}
