package task

// Sweep deletes every file under the packages root that isn't referenced
// by a loaded task, then prunes any directory left empty. Call once at
// startup after LoadPersisted so in-flight/unknown tasks from a previous
// run don't have their files reaped before they're even known — by
// construction only Completed tasks are loaded, so anything else on disk
// at startup is, by definition, orphaned.
func (m *Manager) Sweep() error {
	referenced := make(map[string]bool)
	m.mu.RLock()
	for _, t := range m.tasks {
		if t.FilePath != "" {
			referenced[t.FilePath] = true
		}
	}
	m.mu.RUnlock()

	var toPrune []string
	err := m.blobs.Walk("", func(path string) error {
		if referenced[path] {
			return nil
		}
		if err := m.blobs.Remove(path); err != nil {
			return err
		}
		toPrune = append(toPrune, path)
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range toPrune {
		if err := m.blobs.RemoveEmptyDirs(dirOf(p), ""); err != nil {
			m.log.Error("task: sweep prune dirs for %s: %v", p, err)
		}
	}
	return nil
}
