// Package visual is the Asset Router of spec.md §4.5: it dispatches each
// Scene's VisualType to a renderer through a fixed cache -> breaker ->
// retry -> governor -> raw-call wrapping order. Dispatch is an
// exhaustive switch over the enumerated VisualType instead of a
// runtime string-keyed map of render functions, per the REDESIGN FLAGS.
package visual

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/chroma/v2"
	chromaformatters "github.com/alecthomas/chroma/v2/formatters"
	chromalexers "github.com/alecthomas/chroma/v2/lexers"
	chromastyles "github.com/alecthomas/chroma/v2/styles"

	"eduvid/internal/apperr"
	"eduvid/internal/breaker"
	"eduvid/internal/cache"
	"eduvid/internal/governor"
	"eduvid/internal/logging"
	"eduvid/internal/retry"
	"eduvid/internal/types"
)

// providerCaller performs the actual external render call for one of
// the HTTP-backed visual types (slide, diagram, graph, formula).
type providerCaller interface {
	Render(ctx context.Context, prompt string, outPath string) (width, height int, err error)
}

// Router dispatches scenes to renderers and applies the wrapping order.
type Router struct {
	providers map[types.VisualType]providerCaller
	breakers  *breaker.Registry
	retries   map[types.VisualType]*retry.Policy
	cache     *cache.Cache
	gov       *governor.Governor
	assetDir  string
	log       logging.Logger
}

// Config carries the per-provider URLs and shared components.
type Config struct {
	SlideURL   string
	DiagramURL string
	GraphURL   string
	FormulaURL string
	AssetDir   string
}

// New builds a Router with one HTTP provider per non-code visual type and
// a local Chroma-backed renderer for code.
func New(cfg Config, br *breaker.Registry, rc *cache.Cache, gov *governor.Governor, retryCfg retry.Config, log logging.Logger) *Router {
	retryable := func(err error) bool { return true }

	providers := map[types.VisualType]providerCaller{
		types.VisualSlide:   newHTTPProvider(cfg.SlideURL),
		types.VisualDiagram: newHTTPProvider(cfg.DiagramURL),
		types.VisualGraph:   newHTTPProvider(cfg.GraphURL),
		types.VisualFormula: newHTTPProvider(cfg.FormulaURL),
	}

	retries := make(map[types.VisualType]*retry.Policy, 5)
	for _, vt := range []types.VisualType{types.VisualSlide, types.VisualDiagram, types.VisualGraph, types.VisualFormula, types.VisualCode} {
		retries[vt] = retry.New(string(vt), retryCfg, retryable, log)
	}

	return &Router{
		providers: providers,
		breakers:  br,
		retries:   retries,
		cache:     rc,
		gov:       gov,
		assetDir:  cfg.AssetDir,
		log:       log.With().Str("component", "asset_router").Logger(),
	}
}

// Render produces the VisualAsset for one Scene, following cache ->
// breaker -> retry -> governor -> raw-call. On exhausted retries it
// returns a placeholder asset with Failed=true rather than an error, so
// the orchestrator can proceed with a partial-failure outcome per
// spec.md §4.5.
func (r *Router) Render(ctx context.Context, jobID string, scene types.Scene) (*types.VisualAsset, error) {
	fp := cache.Fingerprint(cache.NamespaceVisual, string(scene.VisualType), scene.VisualPrompt)

	var asset types.VisualAsset
	err := r.cache.GetOrCompute(ctx, cache.NamespaceVisual, fp, &asset, func(ctx context.Context) (any, error) {
		return r.renderUncached(ctx, jobID, scene, fp)
	})
	if err != nil {
		return placeholderAsset(scene, fp, err), nil
	}
	return &asset, nil
}

func (r *Router) renderUncached(ctx context.Context, jobID string, scene types.Scene, fp string) (*types.VisualAsset, error) {
	outPath := filepath.Join(r.assetDir, jobID, "visual", fp+extensionFor(scene.VisualType))

	var width, height int
	var renderErr error

	callRaw := func() error {
		permit, err := r.gov.Acquire(ctx, governor.KindVisual)
		if err != nil {
			return err
		}
		defer permit.Release()

		if scene.VisualType == types.VisualCode {
			width, height, renderErr = r.renderCode(scene.VisualPrompt, outPath)
		} else {
			provider, ok := r.providers[scene.VisualType]
			if !ok {
				return apperr.Wrap(apperr.ErrValidation, fmt.Errorf("unknown visual type %q", scene.VisualType))
			}
			width, height, renderErr = provider.Render(ctx, scene.VisualPrompt, outPath)
		}
		return renderErr
	}

	br := r.breakers.Get(string(scene.VisualType))
	policy := r.retries[scene.VisualType]

	err := br.Call(func() error {
		return policy.Run(ctx, func(ctx context.Context) error {
			return callRaw()
		})
	})
	if err != nil {
		return nil, err
	}

	return &types.VisualAsset{
		SceneID:     scene.ID,
		Path:        outPath,
		Width:       width,
		Height:      height,
		Format:      formatFor(scene.VisualType),
		Fingerprint: fp,
	}, nil
}

func placeholderAsset(scene types.Scene, fp string, cause error) *types.VisualAsset {
	return &types.VisualAsset{
		SceneID:     scene.ID,
		Fingerprint: fp,
		Failed:      true,
		Error:       cause.Error(),
	}
}

func extensionFor(vt types.VisualType) string {
	if vt == types.VisualCode {
		return ".html"
	}
	return ".png"
}

func formatFor(vt types.VisualType) string {
	if vt == types.VisualCode {
		return "html"
	}
	return "png"
}

// renderCode highlights scene's visual prompt (treated as a source
// snippet) locally using alecthomas/chroma/v2, writing syntax-highlighted
// HTML to outPath. This is the one visual type rendered in-process rather
// than delegated to an external provider, since Chroma needs no network
// call.
func (r *Router) renderCode(snippet, outPath string) (width, height int, err error) {
	lexer := chromalexers.Analyse(snippet)
	if lexer == nil {
		lexer = chromalexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromastyles.Get("monokai")
	if style == nil {
		style = chromastyles.Fallback
	}
	formatter := chromaformatters.Get("html")
	if formatter == nil {
		formatter = chromaformatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, snippet)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	defer f.Close()

	if err := formatter.Format(f, style, iterator); err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}

	// A fixed canvas size: the composer rasterizes this HTML to an image
	// of this size before muxing.
	return 1280, 720, nil
}
