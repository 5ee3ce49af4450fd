package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/augment/pkg/ml/datasets"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// exportSamples writes all the examples of ds as PNG files in outDir, named
// "sample_<n>_<class_name>.png". The images are read and encoded concurrently.
//
// It returns the sorted paths of the files written.
func exportSamples(ds datasets.ImageDataset, outDir string, classNames []string) ([]string, error) {
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(runtime.NumCPU())
	var paths []string
	for count := 0; ctx.Err() == nil; count++ {
		example, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = g.Wait()
			return nil, errors.WithMessagef(err, "while reading sample #%d", count)
		}
		className := strconv.Itoa(example.Label)
		if example.Label >= 0 && example.Label < len(classNames) {
			className = classNames[example.Label]
		}
		path := filepath.Join(outDir, fmt.Sprintf("sample_%03d_%s.png", count, sanitizeFileName(className)))
		paths = append(paths, path)
		g.Go(func() error {
			if err := imaging.Save(example.Image, path); err != nil {
				return errors.Wrapf(err, "failed to save sample to %q", path)
			}
			klog.V(2).Infof("saved %q", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(paths)
	return paths, nil
}

// sanitizeFileName replaces characters that are not safe in file names by "_".
func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
