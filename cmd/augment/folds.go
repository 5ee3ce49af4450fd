package main

import (
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseFolds parses a folds selection in the format "<num_folds>:<folds>", where folds is a
// comma-separated list of fold numbers or ranges, e.g. "10:0-7" or "5:0,2,4".
func parseFolds(spec string) (numFolds int, folds []int, err error) {
	numStr, foldsStr, found := strings.Cut(spec, ":")
	if !found {
		err = errors.Errorf("invalid folds %q: format is \"<num_folds>:<folds>\", e.g. \"10:0-7\"", spec)
		return
	}
	numFolds, err = strconv.Atoi(strings.TrimSpace(numStr))
	if err != nil || numFolds <= 0 {
		err = errors.Errorf("invalid number of folds in %q", spec)
		return
	}
	for _, part := range strings.Split(foldsStr, ",") {
		part = strings.TrimSpace(part)
		fromStr, toStr, isRange := strings.Cut(part, "-")
		if !isRange {
			toStr = fromStr
		}
		from, fromErr := strconv.Atoi(fromStr)
		to, toErr := strconv.Atoi(toStr)
		if fromErr != nil || toErr != nil || from > to || from < 0 || to >= numFolds {
			err = errors.Errorf("invalid fold selection %q in %q, folds must be in the range 0 to %d", part, spec, numFolds-1)
			return
		}
		for fold := from; fold <= to; fold++ {
			folds = append(folds, fold)
		}
	}
	slices.Sort(folds)
	folds = slices.Compact(folds)
	return
}

// complementFolds returns the folds in [0, numFolds) not in folds.
func complementFolds(numFolds int, folds []int) []int {
	var complement []int
	for fold := range numFolds {
		if !slices.Contains(folds, fold) {
			complement = append(complement, fold)
		}
	}
	return complement
}
