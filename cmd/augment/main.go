// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// augment builds the augmentation pipeline over a directory of images organized in one sub-directory
// per class, and reports on it.
//
// It can export samples of augmented images as PNG files, pre-generate augmented epochs to a file, and
// measure the throughput of the pipeline.
//
// Example:
//
//	augment -data ~/work/flower_photos -folds 10:0-7 -out /tmp/samples -set "image_size=224;rotation_factor=0.1"
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/augment/pkg/ml/datasets"
	"github.com/gomlx/augment/pkg/ml/random"
	"github.com/gomlx/augment/pkg/pipeline"
	"github.com/gomlx/augment/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagData = flag.String("data", "", "Directory with the images, one sub-directory per class. "+
		"The class names are the sorted sub-directory names.")
	flagOut = flag.String("out", "", "If set, directory where to export -samples augmented images as PNG files.")
	flagSamples = flag.Int("samples", 9, "Number of augmented images to export with -out.")
	flagPreGen  = flag.String("pregen", "", "If set, file where to pre-generate -epochs of augmented "+
		"training images, which can later be read with datasets.NewPreGeneratedDataset.")
	flagEpochs    = flag.Int("epochs", 1, "Number of epochs to pre-generate with -pregen.")
	flagStateless = flag.Bool("stateless", false, "Use the stateless augmentations (random crop and brightness) "+
		"instead of the augmentation layers.")
	flagFolds = flag.String("folds", "", "Split the images in folds for training, in the format "+
		"\"<num_folds>:<folds>\", e.g. \"10:0-7\" uses folds 0 to 7 out of 10 for training, and the remaining "+
		"ones for evaluation. The split is deterministic on the images paths.")
	flagFoldsSeed = flag.Int("folds_seed", 0, "Seed used to assign images to folds.")
	flagBatches   = flag.Int("batches", 10, "Number of batches to read when measuring the pipeline throughput. "+
		"If 0, a full epoch is read. If < 0, the throughput is not measured.")
)

func main() {
	klog.InitFlags(nil)
	cfg := pipeline.DefaultConfig()
	settings := pipeline.CreateSettingsFlag(cfg, "set")
	flag.Parse()

	if *flagData == "" {
		klog.Errorf("Missing -data directory with the images. See 'augment -help'.")
		os.Exit(1)
	}
	keysSet := must.M1(pipeline.ParseSettings(cfg, *settings))
	if len(keysSet) > 0 {
		fmt.Printf("Modified settings:\n%s\n", cfg.SprintModifiedSettings(keysSet))
	}
	klog.V(1).Infof("Settings:\n%s", cfg)

	dataDir := must.M1(fsutil.ExpandPath(*flagData))
	trainDS, evalDS := must.M2(loadDatasets(dataDir, cfg))
	fmt.Println(summaryTable(dataDir, trainDS, evalDS))

	gen := random.NewGenerator(cfg.Seed)
	if *flagOut != "" {
		outDir := must.M1(fsutil.EnsureDir(*flagOut))
		samples := datasets.TakeImages(augmentedImages(trainDS, gen, cfg), *flagSamples)
		paths := must.M1(exportSamples(samples, outDir, trainDS.ClassNames()))
		fmt.Printf("Exported %s augmented samples to %q\n", humanize.Comma(int64(len(paths))), outDir)
		trainDS.Reset()
	}

	if *flagPreGen != "" {
		filePath := must.M1(fsutil.ExpandPath(*flagPreGen))
		numSaved, fileSize := must.M2(preGenerate(augmentedImages(trainDS, gen, cfg), filePath, cfg, *flagEpochs))
		fmt.Printf("Pre-generated %s images (%d epochs) to %q: %s\n",
			humanize.Comma(int64(numSaved)), *flagEpochs, filePath, humanize.Bytes(uint64(fileSize)))
		trainDS.Reset()
	}

	if *flagBatches >= 0 {
		var train datasets.Dataset
		if *flagStateless {
			train = must.M1(pipeline.PrepareStateless(trainDS, gen, cfg))
		} else {
			train = must.M1(pipeline.Prepare(trainDS, cfg, true))
		}
		reports := []throughputReport{must.M1(measureThroughput("train", train, *flagBatches))}
		if evalDS != nil {
			eval := must.M1(pipeline.Prepare(evalDS, cfg, false))
			reports = append(reports, must.M1(measureThroughput("eval", eval, *flagBatches)))
		}
		fmt.Println(throughputTable(reports))
	}
}

// loadDatasets returns the training dataset, and the evaluation dataset if -folds is set.
func loadDatasets(dataDir string, cfg *pipeline.Config) (trainDS, evalDS *datasets.DirectoryDataset, err error) {
	trainConfig := datasets.FromDirectory(dataDir).Shuffle(cfg.Seed)
	if *flagFolds == "" {
		trainDS, err = trainConfig.Done()
		return
	}
	numFolds, trainFolds, err := parseFolds(*flagFolds)
	if err != nil {
		return
	}
	foldsSeed := int32(*flagFoldsSeed)
	trainDS, err = trainConfig.WithName("train").Folds(numFolds, trainFolds, foldsSeed).Done()
	if err != nil {
		return
	}
	evalFolds := complementFolds(numFolds, trainFolds)
	if len(evalFolds) == 0 {
		klog.Warningf("-folds=%q uses all folds for training, no evaluation dataset", *flagFolds)
		return
	}
	evalDS, err = datasets.FromDirectory(dataDir).WithName("eval").Folds(numFolds, evalFolds, foldsSeed).Done()
	return
}

// augmentedImages returns the training images resized and augmented, as configured by -stateless.
func augmentedImages(ds datasets.ImageDataset, gen *random.Generator, cfg *pipeline.Config) datasets.ImageDataset {
	if *flagStateless {
		return datasets.MapImages(ds, pipeline.StatelessAugment(gen, cfg))
	}
	resize, _ := pipeline.ResizeAndRescale(cfg)
	return datasets.Augment(datasets.Augment(ds, resize, true), pipeline.DataAugmentation(cfg), true)
}

// preGenerate saves numEpochs of ds to filePath, and returns the number of images saved and the file size.
func preGenerate(ds datasets.ImageDataset, filePath string, cfg *pipeline.Config, numEpochs int) (numSaved int, fileSize int64, err error) {
	f, err := os.Create(filePath)
	if err != nil {
		return
	}
	numSaved, err = datasets.Save(ds, f, cfg.ImageSize, cfg.ImageSize, numEpochs, true)
	closeErr := f.Close()
	if err != nil {
		return
	}
	if err = closeErr; err != nil {
		return
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return
	}
	fileSize = info.Size()
	return
}

// throughputReport holds the measurements of reading a prepared dataset.
type throughputReport struct {
	name                    string
	numBatches, numExamples int
	numBytes                uintptr
	batchShape              string
	elapsed                 time.Duration
}

// measureThroughput reads up to maxBatches batches of ds (the full epoch if maxBatches is 0).
func measureThroughput(name string, ds datasets.Dataset, maxBatches int) (report throughputReport, err error) {
	report.name = name
	start := time.Now()
	for maxBatches == 0 || report.numBatches < maxBatches {
		_, inputs, _, yieldErr := ds.Yield()
		if yieldErr == io.EOF {
			break
		}
		if yieldErr != nil {
			err = yieldErr
			return
		}
		if report.numBatches == 0 {
			report.batchShape = inputs[0].Shape().String()
		}
		report.numBatches++
		report.numExamples += inputs[0].Shape().Dim(0)
		report.numBytes += inputs[0].Memory()
	}
	report.elapsed = time.Since(start)
	return
}
