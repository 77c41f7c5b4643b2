package preprocess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Sun-Lab-NBB/sl-experiment-sub000/internal/sessiondata"
)

type fakeMesoscope struct {
	pulled       bool
	recompressed bool
}

func (f *fakeMesoscope) Pull(sharedDir, dst string) error {
	f.pulled = true
	return os.MkdirAll(dst, 0o755)
}

func (f *fakeMesoscope) RecompressStacks(dir string) error {
	f.recompressed = true
	return nil
}

type fakeWaterLog struct {
	rows []WaterLogRow
}

func (f *fakeWaterLog) AppendRow(row WaterLogRow) error {
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeWaterLog) ReadRow(animalID string) (WaterLogRow, error) {
	return WaterLogRow{AnimalID: animalID}, nil
}

func newTestLayout(t *testing.T) (sessiondata.FilesystemLayout, string) {
	t.Helper()
	root := t.TempDir()
	identity := sessiondata.NewSessionIdentity("proj", "m1", sessiondata.SessionLickTraining, "1.0.0", nil)
	roots := sessiondata.Roots{
		RawDataRoot:      filepath.Join(root, "raw"),
		PersistentRoot:   filepath.Join(root, "persistent"),
		NASRoot:          filepath.Join(root, "nas"),
		ServerRoot:       filepath.Join(root, "server"),
		MesoscopeShared:  filepath.Join(root, "meso_shared"),
		MesoscopePersist: filepath.Join(root, "meso_persist"),
	}
	layout, err := sessiondata.NewFilesystemLayout(identity, roots)
	if err != nil {
		t.Fatalf("NewFilesystemLayout: %v", err)
	}

	logBusDir := filepath.Join(root, "logbus")
	if err := os.MkdirAll(logBusDir, 0o755); err != nil {
		t.Fatalf("mkdir logbus dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(logBusDir, "1.log.zst"), []byte("shard"), 0o644); err != nil {
		t.Fatalf("write shard: %v", err)
	}

	return layout, logBusDir
}

func TestPipelineRunCompletesAllStepsForLickTrainingSession(t *testing.T) {
	layout, logBusDir := newTestLayout(t)
	identity := sessiondata.SessionIdentity{SessionName: "20260730-120000", AnimalID: "m1"}
	descriptor := sessiondata.Descriptor{
		Type:         sessiondata.SessionLickTraining,
		Common:       sessiondata.CommonDescriptor{Notes: "edited", Incomplete: false},
		LickTraining: &sessiondata.LickTrainingFields{},
	}

	meso := &fakeMesoscope{}
	wlog := &fakeWaterLog{}
	pipeline := &Pipeline{
		Mesoscope: meso,
		WaterLog:  wlog,
		Transfer:  LocalCopyTransferer{},
	}

	if err := pipeline.Run(layout, identity, descriptor, logBusDir, layout.MesoscopeShared, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if meso.pulled || meso.recompressed {
		t.Fatal("expected mesoscope collaborator untouched for a non-mesoscope session")
	}
	if len(wlog.rows) != 1 {
		t.Fatalf("expected one water log row appended, got %d", len(wlog.rows))
	}
	if !IsComplete(layout.RawData) {
		t.Fatal("expected telomere.bin after a completed descriptor")
	}
	if _, err := os.Stat(filepath.Join(layout.RawData, checksumFileName)); err != nil {
		t.Fatalf("expected checksum file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(layout.NASDestination, checksumFileName)); err != nil {
		t.Fatalf("expected checksum file transferred to NAS: %v", err)
	}
	if _, err := os.Stat(filepath.Join(layout.ServerDestination, checksumFileName)); err != nil {
		t.Fatalf("expected checksum file transferred to server: %v", err)
	}
}

func TestPipelineRunSkipsMarkCompleteWhenIncomplete(t *testing.T) {
	layout, logBusDir := newTestLayout(t)
	identity := sessiondata.SessionIdentity{SessionName: "20260730-120000", AnimalID: "m1"}
	descriptor := sessiondata.Descriptor{
		Type:         sessiondata.SessionLickTraining,
		Common:       sessiondata.CommonDescriptor{Notes: "edited", Incomplete: true},
		LickTraining: &sessiondata.LickTrainingFields{},
	}

	pipeline := New()
	if err := pipeline.Run(layout, identity, descriptor, logBusDir, layout.MesoscopeShared, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if IsComplete(layout.RawData) {
		t.Fatal("expected no telomere.bin for an incomplete descriptor")
	}
}

func TestPipelineRunPullsMesoscopeDataForMesoscopeSession(t *testing.T) {
	layout, logBusDir := newTestLayout(t)
	identity := sessiondata.SessionIdentity{SessionName: "20260730-120000", AnimalID: "m1"}
	descriptor := sessiondata.Descriptor{
		Type:       sessiondata.SessionExperiment,
		Common:     sessiondata.CommonDescriptor{Notes: "edited", Incomplete: true},
		Experiment: &sessiondata.ExperimentFields{},
	}

	meso := &fakeMesoscope{}
	pipeline := &Pipeline{Mesoscope: meso, WaterLog: NoopWaterLog{}, Transfer: LocalCopyTransferer{}}

	if err := pipeline.Run(layout, identity, descriptor, logBusDir, layout.MesoscopeShared, true); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !meso.pulled || !meso.recompressed {
		t.Fatal("expected mesoscope collaborator invoked for a mesoscope session")
	}
}

func TestPurgeRemovesRawDataTree(t *testing.T) {
	root := t.TempDir()
	rawData := filepath.Join(root, "raw_data")
	if err := os.MkdirAll(rawData, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(rawData, "nk.bin"), nil, 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	if err := Purge(rawData); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(rawData); !os.IsNotExist(err) {
		t.Fatalf("expected raw data removed, stat err = %v", err)
	}
}
