package orchestrator

import (
	"context"
	"fmt"

	"github.com/JakeFAU/parse-artifact-retriever/internal/retrieval"
)

// DefaultStages returns direct_link, precise_path and broad_search in order.
func DefaultStages(links Links, strategies Strategies) []Stage {
	return []Stage{
		DirectStage{Links: links, Strategies: strategies},
		PreciseStage{Strategies: strategies},
		BroadStage{Strategies: strategies},
	}
}

// DirectStage downloads the pre-signed links found in the task metadata.
type DirectStage struct {
	Links      Links
	Strategies Strategies
}

// Method implements Stage.
func (DirectStage) Method() retrieval.Method { return retrieval.MethodDirectLink }

// Run implements Stage. It records any inferred parse path in st even when
// the download fails, so the precise stage can use it. Metadata that names a
// different task than the resolved one is rejected before any download.
func (s DirectStage) Run(ctx context.Context, st *State) (retrieval.Outcome, bool) {
	req := st.Request
	if s.Links == nil || req.RawMetadata == nil || *req.RawMetadata == "" {
		return retrieval.Outcome{}, false
	}
	if !s.Links.Parseable(req.Identity.TaskType) {
		return retrieval.Outcome{}, false
	}
	if id := s.Links.TaskID(req.Identity.TaskType, *req.RawMetadata); id != "" && id != req.Identity.TaskID {
		out := retrieval.Failed(retrieval.MethodDirectLink,
			fmt.Errorf("metadata task id %s does not match %s", id, req.Identity.TaskID))
		out.SavePath = s.Strategies.SavePath(req.Identity)
		return out, true
	}
	links, err := s.Links.Extract(req.Identity.TaskType, *req.RawMetadata)
	if links.InferredPath != "" {
		st.InferredPath = links.InferredPath
	}
	if err != nil {
		out := retrieval.Failed(retrieval.MethodDirectLink, err)
		out.SavePath = s.Strategies.SavePath(req.Identity)
		return out, true
	}
	return s.Strategies.FetchDirect(ctx, req.Identity, links.URLs, req.Decompress), true
}

// PreciseStage reads the single parse object named by the inferred path.
type PreciseStage struct {
	Strategies Strategies
}

// Method implements Stage.
func (PreciseStage) Method() retrieval.Method { return retrieval.MethodPrecisePath }

// Run implements Stage.
func (s PreciseStage) Run(ctx context.Context, st *State) (retrieval.Outcome, bool) {
	if st.InferredPath == "" {
		return retrieval.Outcome{}, false
	}
	return s.Strategies.FetchPrecise(ctx, st.InferredPath, st.Request.Identity, st.Request.Decompress), true
}

// BroadStage lists and downloads everything under the task's parse prefix.
type BroadStage struct {
	Strategies Strategies
}

// Method implements Stage.
func (BroadStage) Method() retrieval.Method { return retrieval.MethodBroadSearch }

// Run implements Stage.
func (s BroadStage) Run(ctx context.Context, st *State) (retrieval.Outcome, bool) {
	return s.Strategies.FetchBroad(ctx, st.Request.Identity, st.Request.Decompress), true
}
