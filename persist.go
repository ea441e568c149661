package atombase

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-kit/log/level"

	"github.com/atombase/atombase/bin"
	"github.com/atombase/atombase/collection"
)

func binFilePath(dataPath, collectionName string, binIndex int) string {
	return filepath.Join(dataPath, fmt.Sprintf("%s-%05d.bin", collectionName, binIndex))
}

// PersistCollection writes every bin of collectionName to Persist.DataPath
// in the §6 persisted bin format, one file per bin. A no-op, successfully,
// when persistence is disabled.
func (e *Engine) PersistCollection(collectionName string) error {
	if !e.cfg.Persist.Enabled {
		return nil
	}
	c, err := e.collection(collectionName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(e.cfg.Persist.DataPath, 0o755); err != nil {
		return fmt.Errorf("atombase: persist: %w", err)
	}

	for i, b := range c.Bins() {
		if err := persistOneBin(e.cfg.Persist.DataPath, collectionName, i, b); err != nil {
			level.Error(e.logger).Log("msg", "persist failed", "collection", collectionName, "bin", i, "err", err)
			return err
		}
	}
	return nil
}

func persistOneBin(dataPath, collectionName string, binIndex int, b *bin.Bin) error {
	path := binFilePath(dataPath, collectionName, binIndex)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("atombase: persist: create %s: %w", path, err)
	}
	defer f.Close()
	return b.Serialize(f)
}

// LoadCollection reconstructs collectionName from the bin files previously
// written by PersistCollection, registering it on the Engine so it's
// immediately queryable (§8 S6 "reload into a second instance").
func (e *Engine) LoadCollection(collectionName string) error {
	bins, err := loadBins(e.cfg.Persist.DataPath, collectionName)
	if err != nil {
		return err
	}

	c := collection.Restore(collectionName, e.cfg.collectionConfig(), bins)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[collectionName] = c
	metricCollectionsGauge.Set(float64(len(e.collections)))
	return nil
}

func loadBins(dataPath, collectionName string) ([]*bin.Bin, error) {
	var bins []*bin.Bin
	for i := 0; ; i++ {
		path := binFilePath(dataPath, collectionName, i)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("atombase: load: open %s: %w", path, err)
		}
		b, err := bin.Deserialize(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("atombase: load: deserialize %s: %w", path, err)
		}
		bins = append(bins, b)
	}
	if len(bins) == 0 {
		return nil, fmt.Errorf("atombase: load: no persisted bins found for collection %q under %s", collectionName, dataPath)
	}
	return bins, nil
}
