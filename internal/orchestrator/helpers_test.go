package orchestrator_test

import "crucible/internal/fileutil"

func readJSON(path string, v any) error {
	return fileutil.ReadJSON(path, v)
}
