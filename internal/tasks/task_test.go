package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/assets"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/config"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/history"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blender"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/blenderkit"
	"github.com/BlenderKit/blenderkit-asset-tasks/internal/services/llm"
)

type uploadCall struct {
	assetID string
	files   []blenderkit.UploadFile
}

type patchCall struct {
	assetID string
	param   assets.Parameter
}

type commentCall struct {
	assetBaseID string
	comment     string
	replyTo     int
}

// fakeDB implements Database in memory. Downloads materialize a real blend
// file because version selection sniffs the header.
type fakeDB struct {
	assets      []assets.Asset
	searchErr   error
	searchOpts  []blenderkit.SearchOptions
	downloadErr error
	uploads     []uploadCall
	uploadErr   error
	reindexed   []string
	patches     []patchCall
	patchErr    error
	comments    []commentCall
	commentErr  error
}

func (f *fakeDB) SearchAssets(_ context.Context, opts blenderkit.SearchOptions) ([]assets.Asset, error) {
	f.searchOpts = append(f.searchOpts, opts)
	return f.assets, f.searchErr
}

func (f *fakeDB) DownloadAssetFile(_ context.Context, asset assets.Asset, fileType, dir string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := filepath.Join(dir, asset.AssetBaseID+"_"+fileType)
	// "v402" stamps a 4.2 header.
	if err := os.WriteFile(path, []byte("BLENDER-v402"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeDB) UploadFiles(_ context.Context, assetID string, files []blenderkit.UploadFile) error {
	f.uploads = append(f.uploads, uploadCall{assetID: assetID, files: files})
	return f.uploadErr
}

func (f *fakeDB) PatchAssetEmpty(_ context.Context, assetID string) error {
	f.reindexed = append(f.reindexed, assetID)
	return nil
}

func (f *fakeDB) PatchParameter(_ context.Context, assetID string, param assets.Parameter) error {
	f.patches = append(f.patches, patchCall{assetID: assetID, param: param})
	return f.patchErr
}

func (f *fakeDB) MarkForThumbnail(context.Context, string, map[string]any) error {
	return nil
}

func (f *fakeDB) CreateComment(_ context.Context, assetBaseID, comment string, replyTo int) error {
	f.comments = append(f.comments, commentCall{assetBaseID: assetBaseID, comment: comment, replyTo: replyTo})
	return f.commentErr
}

func (f *fakeDB) paramValues(name string) []string {
	var values []string
	for _, call := range f.patches {
		if call.param.ParameterType == name {
			values = append(values, call.param.Value)
		}
	}
	return values
}

// fakeRunner records invocations and lets the test decide what each Blender
// run produces.
type fakeRunner struct {
	invocations []blender.Invocation
	onRun       func(inv blender.Invocation) error
}

func (f *fakeRunner) Run(_ context.Context, inv blender.Invocation) (blender.Result, error) {
	f.invocations = append(f.invocations, inv)
	if f.onRun != nil {
		if err := f.onRun(inv); err != nil {
			return blender.Result{ExitCode: 1}, err
		}
	}
	return blender.Result{ExitCode: 0}, nil
}

type fakeRecorder struct {
	runs []history.Run
	done map[string]bool
}

func (f *fakeRecorder) Record(_ context.Context, run history.Run) (int64, error) {
	f.runs = append(f.runs, run)
	return int64(len(f.runs)), nil
}

func (f *fakeRecorder) Succeeded(_ context.Context, task, assetBaseID string) (bool, error) {
	return f.done[task+"/"+assetBaseID], nil
}

type fakeCaptioner struct {
	text     string
	err      error
	requests []llm.CaptionRequest
}

func (f *fakeCaptioner) GenerateAltText(_ context.Context, req llm.CaptionRequest) (string, error) {
	f.requests = append(f.requests, req)
	return f.text, f.err
}

// writeResultList makes onRun emit the generated-files JSON the background
// scripts write, when the invocation asks for a result file.
func writeResultList(files []generatedFile) func(blender.Invocation) error {
	return func(inv blender.Invocation) error {
		if inv.Datafile.ResultFilepath == "" {
			return nil
		}
		payload, err := json.Marshal(files)
		if err != nil {
			return err
		}
		return os.WriteFile(inv.Datafile.ResultFilepath, payload, 0o644)
	}
}

func testRuntime(t *testing.T, db *fakeDB, runner *fakeRunner) (*Runtime, *fakeRecorder) {
	t.Helper()
	root := t.TempDir()
	binary := filepath.Join(root, "blender")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(root, "work")
	cfg.Paths.DownloadCache = filepath.Join(root, "cache")
	cfg.Paths.ResultsDir = filepath.Join(root, "results")
	cfg.Paths.BlenderBinary = binary
	cfg.Tasks.MaxAssets = 10
	cfg.Tasks.ProcessTimeout = 60
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.DownloadCache, cfg.Paths.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	rec := &fakeRecorder{done: map[string]bool{}}
	return &Runtime{
		Config:  &cfg,
		DB:      db,
		Runner:  runner,
		History: rec,
		RunID:   "test-run",
	}, rec
}

func modelAsset(id string) assets.Asset {
	return assets.Asset{
		ID:          id,
		AssetBaseID: "base-" + id,
		Name:        "asset " + id,
		AssetType:   "model",
		Files:       []assets.File{{FileType: "blend", FileName: id + ".blend"}},
	}
}

func TestResolutionsUploadsAndReindexes(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("a1")}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "resolution_2K", Index: 0, Path: "/tmp/a1_2k.blend"},
		{Type: "resolution_1K", Index: 0, Path: "/tmp/a1_1k.blend"},
	})}
	rt, rec := testRuntime(t, db, runner)

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Non-HDR runs unpack then the resolution script.
	if len(runner.invocations) != 2 {
		t.Fatalf("invocations = %d, want 2", len(runner.invocations))
	}
	if runner.invocations[0].Datafile.ResultFilepath != "" {
		t.Error("unpack run should not expect a result file")
	}

	if len(db.uploads) != 1 || db.uploads[0].assetID != "a1" || len(db.uploads[0].files) != 2 {
		t.Fatalf("uploads = %+v", db.uploads)
	}
	if len(db.reindexed) != 1 || db.reindexed[0] != "base-a1" {
		t.Errorf("reindexed = %v, want [base-a1]", db.reindexed)
	}
	if len(rec.runs) != 1 || rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("ledger = %+v", rec.runs)
	}
	if rec.runs[0].Task != TaskResolutions || rec.runs[0].AssetBaseID != "base-a1" {
		t.Errorf("ledger row = %+v", rec.runs[0])
	}
	// The fake blend file carries a 4.2 header.
	if rec.runs[0].BlenderVersion != "4.2" {
		t.Errorf("ledger blender = %q, want 4.2", rec.runs[0].BlenderVersion)
	}
}

func TestLedgerKeepsBlenderVersionOnFailure(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("m1")}}
	runner := &fakeRunner{onRun: func(blender.Invocation) error {
		return errors.New("render crashed")
	}}
	rt, rec := testRuntime(t, db, runner)

	if err := rt.GLTF(context.Background(), GLTFWeb); err == nil {
		t.Fatal("expected failure")
	}
	if len(rec.runs) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rec.runs))
	}
	if rec.runs[0].Status != history.StatusFailed {
		t.Errorf("status = %s, want failed", rec.runs[0].Status)
	}
	if rec.runs[0].BlenderVersion != "4.2" {
		t.Errorf("ledger blender = %q, want 4.2 even when the run fails", rec.runs[0].BlenderVersion)
	}
}

func TestResolutionsHDRSkipsUnpack(t *testing.T) {
	asset := modelAsset("h1")
	asset.AssetType = "hdr"
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "resolution_1K", Index: 0, Path: "/tmp/h1_1k.exr"},
	})}
	rt, _ := testRuntime(t, db, runner)

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(runner.invocations) != 1 {
		t.Fatalf("invocations = %d, want 1 (no unpack for HDR)", len(runner.invocations))
	}
	if runner.invocations[0].TemplateBlend != "" {
		t.Error("HDR run should start from a factory scene")
	}
}

func TestResolutionsSkipUpload(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("a1")}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "resolution_1K", Index: 0, Path: "/tmp/a1_1k.blend"},
	})}
	rt, rec := testRuntime(t, db, runner)
	rt.Config.Tasks.SkipUpload = true

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.uploads) != 0 {
		t.Error("skip_upload should prevent uploads")
	}
	if rec.runs[0].Status != history.StatusSkipped {
		t.Errorf("status = %s, want skipped", rec.runs[0].Status)
	}
}

func TestResolutionsNothingGenerated(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("a1")}}
	runner := &fakeRunner{onRun: writeResultList(nil)}
	rt, rec := testRuntime(t, db, runner)

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.uploads) != 0 {
		t.Error("no generated files should mean no uploads")
	}
	if rec.runs[0].Status != history.StatusSkipped {
		t.Errorf("status = %s, want skipped", rec.runs[0].Status)
	}
}

func TestForEachContinuesPastFailure(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("bad"), modelAsset("good")}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		if strings.Contains(inv.Datafile.FilePath, "bad") {
			return errors.New("blender crashed")
		}
		return writeResultList([]generatedFile{
			{Type: "resolution_1K", Index: 0, Path: "/tmp/good_1k.blend"},
		})(inv)
	}}
	rt, rec := testRuntime(t, db, runner)

	err := rt.Resolutions(context.Background())
	if err == nil {
		t.Fatal("expected first failure to surface")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Errorf("error = %v, want external tool failure", err)
	}

	// Second asset was still processed and uploaded.
	if len(db.uploads) != 1 || db.uploads[0].assetID != "good" {
		t.Fatalf("uploads = %+v", db.uploads)
	}
	if len(rec.runs) != 2 {
		t.Fatalf("ledger rows = %d, want 2", len(rec.runs))
	}
	if rec.runs[0].Status != history.StatusFailed || rec.runs[1].Status != history.StatusSuccess {
		t.Errorf("statuses = %s, %s", rec.runs[0].Status, rec.runs[1].Status)
	}
}

func TestForEachSkipsAlreadyProcessed(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("a1")}}
	runner := &fakeRunner{}
	rt, rec := testRuntime(t, db, runner)
	rec.done[TaskResolutions+"/base-a1"] = true

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(runner.invocations) != 0 {
		t.Error("already-processed asset should not run Blender")
	}
	if len(rec.runs) != 0 {
		t.Error("skipped asset should not add a ledger row")
	}
}

func TestForEachExplicitAssetBypassesHistory(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("a1")}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "resolution_1K", Index: 0, Path: "/tmp/a1_1k.blend"},
	})}
	rt, rec := testRuntime(t, db, runner)
	rec.done[TaskResolutions+"/base-a1"] = true
	rt.Config.Tasks.AssetBaseID = "base-a1"

	if err := rt.Resolutions(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(runner.invocations) == 0 {
		t.Error("explicit asset_base_id should force reprocessing")
	}
	if opts := db.searchOpts[0]; opts.Parameters["asset_base_id"] != "base-a1" || opts.MaxResults != 1 {
		t.Errorf("search opts = %+v", opts)
	}
}

func TestGLTFSuccessStampsParameters(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("m1")}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "gltf", Index: 0, Path: "/tmp/m1.glb"},
	})}
	rt, _ := testRuntime(t, db, runner)

	if err := rt.GLTF(context.Background(), GLTFWeb); err != nil {
		t.Fatal(err)
	}
	if runner.invocations[0].Datafile.TargetFormat != "gltf" {
		t.Errorf("target format = %q", runner.invocations[0].Datafile.TargetFormat)
	}
	if len(db.paramValues("gltfGeneratedDate")) != 1 {
		t.Error("gltfGeneratedDate not stamped")
	}
	if len(db.paramValues("gltfSizeWeb")) != 1 {
		t.Error("gltfSizeWeb not stamped")
	}
	if len(db.paramValues("gltfGeneratedError")) != 0 {
		t.Error("success should not stamp an error")
	}
}

func TestGLTFGodotUsesOwnParameters(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("m1")}}
	runner := &fakeRunner{onRun: writeResultList([]generatedFile{
		{Type: "gltf_godot", Index: 0, Path: "/tmp/m1.glb"},
	})}
	rt, _ := testRuntime(t, db, runner)

	if err := rt.GLTF(context.Background(), GLTFGodot); err != nil {
		t.Fatal(err)
	}
	if len(db.paramValues("gltfGodotGeneratedDate")) != 1 || len(db.paramValues("gltfGodotSize")) != 1 {
		t.Errorf("patches = %+v", db.patches)
	}
	if len(db.paramValues("gltfGeneratedDate")) != 0 {
		t.Error("godot export must not touch web parameters")
	}
}

func TestGLTFFailureStampedOnAsset(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("m1")}}
	runner := &fakeRunner{onRun: func(blender.Invocation) error {
		return errors.New("export blew up")
	}}
	rt, rec := testRuntime(t, db, runner)

	if err := rt.GLTF(context.Background(), GLTFWeb); err == nil {
		t.Fatal("expected failure")
	}
	stamped := db.paramValues("gltfGeneratedError")
	if len(stamped) != 1 {
		t.Fatalf("gltfGeneratedError patches = %v", stamped)
	}
	if len(stamped[0]) > 256 {
		t.Errorf("error value too long: %d chars", len(stamped[0]))
	}
	if rec.runs[0].Status != history.StatusFailed {
		t.Errorf("status = %s, want failed", rec.runs[0].Status)
	}
}

func TestGLTFRejectsUnknownTarget(t *testing.T) {
	rt, _ := testRuntime(t, &fakeDB{}, &fakeRunner{})
	err := rt.GLTF(context.Background(), GLTFTarget("obj"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}

func TestThumbnailRequiresTemplateScene(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("t1")}}
	rt, _ := testRuntime(t, db, &fakeRunner{})
	rt.Config.Paths.TemplatesDir = t.TempDir() // no scene file inside

	err := rt.Thumbnail(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}

func TestThumbnailRendersAndClearsFlag(t *testing.T) {
	asset := modelAsset("t1")
	asset.DictParameters = map[string]any{
		"markThumbnailRender": `{"thumbnail_samples": 250, "thumbnail_angle": "FRONT", "bogus": 1}`,
	}
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		return os.WriteFile(inv.Datafile.ResultFilepath, []byte("jpegdata"), 0o644)
	}}
	rt, rec := testRuntime(t, db, runner)

	templates := t.TempDir()
	rt.Config.Paths.TemplatesDir = templates
	scene := filepath.Join(templates, "model_thumbnailer.blend")
	if err := os.WriteFile(scene, []byte("BLENDER-v402"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rt.Thumbnail(context.Background()); err != nil {
		t.Fatal(err)
	}

	inv := runner.invocations[0]
	if inv.TemplateBlend != scene {
		t.Errorf("template = %s, want %s", inv.TemplateBlend, scene)
	}
	if got := inv.Datafile.AssetData["thumbnail_samples"]; got != float64(250) {
		t.Errorf("thumbnail_samples = %v, want 250", got)
	}
	if got := inv.Datafile.AssetData["thumbnail_angle"]; got != "FRONT" {
		t.Errorf("thumbnail_angle = %v, want FRONT", got)
	}
	if got := inv.Datafile.AssetData["thumbnail_resolution"]; got != 2048 {
		t.Errorf("thumbnail_resolution = %v, want default 2048", got)
	}
	if _, leaked := inv.Datafile.AssetData["bogus"]; leaked {
		t.Error("unknown render settings must not reach the script")
	}

	if len(db.uploads) != 1 || db.uploads[0].files[0].Type != "thumbnail" {
		t.Fatalf("uploads = %+v", db.uploads)
	}
	cleared := db.paramValues("markThumbnailRender")
	if len(cleared) != 1 || cleared[0] != "" {
		t.Errorf("markThumbnailRender patches = %v, want one empty value", cleared)
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
}

func TestAddonTestWritesPerReleaseResults(t *testing.T) {
	asset := modelAsset("x1")
	asset.AssetType = "addon"
	asset.Files = []assets.File{{FileType: "zip_file", FileName: "x1.zip"}}
	asset.DictParameters = map[string]any{"extensionId": "my_extension"}
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		checks := map[string]string{"install": "", "enable": "", "disable": ""}
		payload, _ := json.Marshal(checks)
		return os.WriteFile(inv.Datafile.ResultFilepath, payload, 0o644)
	}}
	rt, rec := testRuntime(t, db, runner)

	if err := rt.AddonTest(context.Background(), "4.2"); err != nil {
		t.Fatal(err)
	}

	results := filepath.Join(rt.Config.Paths.ResultsDir, "blender-4.2", "test_addon_results.json")
	payload, err := os.ReadFile(results)
	if err != nil {
		t.Fatalf("results file not written: %v", err)
	}
	var checks map[string]string
	if err := json.Unmarshal(payload, &checks); err != nil {
		t.Fatal(err)
	}
	if checks["install"] != "" {
		t.Errorf("checks = %v", checks)
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
	if rec.runs[0].BlenderVersion != "4.2" {
		t.Errorf("ledger blender = %q, want 4.2", rec.runs[0].BlenderVersion)
	}
}

func TestAddonTestFailedCheck(t *testing.T) {
	asset := modelAsset("x1")
	asset.AssetType = "addon"
	asset.Files = []assets.File{{FileType: "zip_file", FileName: "x1.zip"}}
	asset.DictParameters = map[string]any{"extensionId": "my_extension"}
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		checks := map[string]string{"install": "", "enable": "module not found"}
		payload, _ := json.Marshal(checks)
		return os.WriteFile(inv.Datafile.ResultFilepath, payload, 0o644)
	}}
	rt, _ := testRuntime(t, db, runner)

	err := rt.AddonTest(context.Background(), "4.2")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool failure", err)
	}
	if !strings.Contains(err.Error(), "enable") {
		t.Errorf("error should name the failed check: %v", err)
	}

	// Result file still written so the report covers the failure.
	results := filepath.Join(rt.Config.Paths.ResultsDir, "blender-4.2", "test_addon_results.json")
	if _, statErr := os.Stat(results); statErr != nil {
		t.Errorf("results file missing: %v", statErr)
	}
}

func TestAddonTestRequiresExtensionID(t *testing.T) {
	asset := modelAsset("x1")
	asset.AssetType = "addon"
	asset.Files = []assets.File{{FileType: "zip_file"}}
	db := &fakeDB{assets: []assets.Asset{asset}}
	rt, _ := testRuntime(t, db, &fakeRunner{})

	err := rt.AddonTest(context.Background(), "4.2")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}

func TestAddonReportPostsComment(t *testing.T) {
	db := &fakeDB{}
	rt, rec := testRuntime(t, db, &fakeRunner{})
	rt.Commenter = db
	rt.Config.Tasks.AssetBaseID = "base-x1"

	release := filepath.Join(rt.Config.Paths.ResultsDir, "blender-4.2")
	if err := os.MkdirAll(release, 0o755); err != nil {
		t.Fatal(err)
	}
	payload := []byte(`{"install":"","enable":""}`)
	if err := os.WriteFile(filepath.Join(release, "test_addon_results.json"), payload, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rt.AddonReport(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.comments) != 1 {
		t.Fatalf("comments = %+v", db.comments)
	}
	call := db.comments[0]
	if call.assetBaseID != "base-x1" || call.replyTo != 0 {
		t.Errorf("comment call = %+v", call)
	}
	if !strings.Contains(call.comment, "**blender-4.2**: OK") {
		t.Errorf("comment = %q", call.comment)
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
}

func TestAddonReportRequiresAssetBaseID(t *testing.T) {
	db := &fakeDB{}
	rt, _ := testRuntime(t, db, &fakeRunner{})
	rt.Commenter = db

	err := rt.AddonReport(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}

func TestCaptionStoresAltText(t *testing.T) {
	asset := modelAsset("c1")
	asset.Category = "furniture"
	asset.Description = "a wooden chair"
	asset.DictParameters = map[string]any{"imageCaptionInterrogator": "a chair on white background"}
	db := &fakeDB{assets: []assets.Asset{asset}}
	captioner := &fakeCaptioner{text: "Wooden chair 3D model for Blender."}
	rt, rec := testRuntime(t, db, &fakeRunner{})
	rt.Captioner = captioner

	if err := rt.Caption(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(captioner.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(captioner.requests))
	}
	req := captioner.requests[0]
	if req.MachineDescription != "a chair on white background" || req.UserDescription != "a wooden chair" {
		t.Errorf("request = %+v", req)
	}

	stored := db.paramValues("imageAltTextGen3")
	if len(stored) != 1 || stored[0] != "Wooden chair 3D model for Blender." {
		t.Errorf("stored = %v", stored)
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
}

func TestCaptionSkipsAssetWithoutSource(t *testing.T) {
	db := &fakeDB{assets: []assets.Asset{modelAsset("c1")}}
	rt, rec := testRuntime(t, db, &fakeRunner{})
	rt.Captioner = &fakeCaptioner{text: "never used"}

	if err := rt.Caption(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.patches) != 0 {
		t.Error("asset without interrogator caption should not be patched")
	}
	if rec.runs[0].Status != history.StatusSkipped {
		t.Errorf("status = %s, want skipped", rec.runs[0].Status)
	}
}

func TestCaptionRequiresCaptioner(t *testing.T) {
	rt, _ := testRuntime(t, &fakeDB{}, &fakeRunner{})
	err := rt.Caption(context.Background())
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}

func writeValidationTemplates(t *testing.T, rt *Runtime) {
	t.Helper()
	templates := t.TempDir()
	rt.Config.Paths.TemplatesDir = templates
	scenes := []string{
		"model_validation_static_renders.blend",
		"material_validator_mix.blend",
		"material_turnaround.blend",
	}
	for _, name := range scenes {
		if err := os.WriteFile(filepath.Join(templates, name), []byte("BLENDER-v402"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestModelValidationStoresRenders(t *testing.T) {
	asset := modelAsset("v1")
	asset.Files[0].DownloadURL = "https://files.example.com/public/u-100/v1.blend"
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		if inv.Datafile.ResultFilepath == "" {
			return nil // unpack pass
		}
		name := "v1_front.webp"
		kind := "validation_render"
		if inv.Datafile.TargetFormat != "" {
			name = "v1.glb"
			kind = inv.Datafile.TargetFormat
		}
		out := filepath.Join(inv.Datafile.ResultFolder, name)
		if err := os.WriteFile(out, []byte("data"), 0o644); err != nil {
			return err
		}
		return writeResultList([]generatedFile{{Type: kind, Index: 0, Path: out}})(inv)
	}}
	rt, rec := testRuntime(t, db, runner)
	writeValidationTemplates(t, rt)

	if err := rt.Validations(context.Background(), ValidationModel); err != nil {
		t.Fatal(err)
	}

	if len(runner.invocations) != 3 {
		t.Fatalf("invocations = %d, want unpack + render + gltf", len(runner.invocations))
	}
	if !strings.HasSuffix(runner.invocations[1].TemplateBlend, "model_validation_static_renders.blend") {
		t.Errorf("render template = %s", runner.invocations[1].TemplateBlend)
	}

	stored := filepath.Join(rt.Config.Paths.ResultsDir, "validation-renders", "u-100")
	for _, name := range []string{"v1_front.webp", "v1.glb"} {
		if _, err := os.Stat(filepath.Join(stored, name)); err != nil {
			t.Errorf("stored file %s missing: %v", name, err)
		}
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
	if !strings.Contains(rec.runs[0].Message, "u-100") {
		t.Errorf("message = %q, want the upload id", rec.runs[0].Message)
	}
}

func TestValidationsSkipWhenRendersExist(t *testing.T) {
	asset := modelAsset("v1")
	asset.Files[0].DownloadURL = "https://files.example.com/public/u-100/v1.blend"
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{}
	rt, rec := testRuntime(t, db, runner)
	writeValidationTemplates(t, rt)

	existing := filepath.Join(rt.Config.Paths.ResultsDir, "validation-renders", "u-100")
	if err := os.MkdirAll(existing, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(existing, "v1_front.webp"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := rt.Validations(context.Background(), ValidationModel); err != nil {
		t.Fatal(err)
	}
	if len(runner.invocations) != 0 {
		t.Error("existing renders should skip Blender entirely")
	}
	if rec.runs[0].Status != history.StatusSkipped {
		t.Errorf("status = %s, want skipped", rec.runs[0].Status)
	}
}

func TestMaterialValidationRendersStillAndTurnaround(t *testing.T) {
	asset := modelAsset("mat1")
	asset.AssetType = "material"
	asset.Files[0].DownloadURL = "https://files.example.com/public/u-200/mat1.blend"
	db := &fakeDB{assets: []assets.Asset{asset}}
	runner := &fakeRunner{onRun: func(inv blender.Invocation) error {
		return os.WriteFile(inv.Datafile.ResultFilepath, []byte("frame"), 0o644)
	}}
	rt, rec := testRuntime(t, db, runner)
	writeValidationTemplates(t, rt)

	if err := rt.Validations(context.Background(), ValidationMaterial); err != nil {
		t.Fatal(err)
	}

	if len(runner.invocations) != 2 {
		t.Fatalf("invocations = %d, want still + turnaround", len(runner.invocations))
	}
	if !strings.HasSuffix(runner.invocations[0].TemplateBlend, "material_validator_mix.blend") {
		t.Errorf("still template = %s", runner.invocations[0].TemplateBlend)
	}
	if !strings.HasSuffix(runner.invocations[1].TemplateBlend, "material_turnaround.blend") {
		t.Errorf("turnaround template = %s", runner.invocations[1].TemplateBlend)
	}

	stored := filepath.Join(rt.Config.Paths.ResultsDir, "validation-renders", "u-200")
	for _, name := range []string{"Renderu-200.webp", "u-200_turnaround.mkv"} {
		if _, err := os.Stat(filepath.Join(stored, name)); err != nil {
			t.Errorf("stored file %s missing: %v", name, err)
		}
	}
	if rec.runs[0].Status != history.StatusSuccess {
		t.Errorf("status = %s", rec.runs[0].Status)
	}
}

func TestValidationsRejectsUnknownType(t *testing.T) {
	rt, _ := testRuntime(t, &fakeDB{}, &fakeRunner{})
	err := rt.Validations(context.Background(), ValidationType("scene"))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("error = %v, want configuration failure", err)
	}
}
