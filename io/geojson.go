package io

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/pkg/errors"
	"io"
	"os"
	"time"
)

func WriteFeatureCollectionFile(featureCollection *geojson.FeatureCollection, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create GeoJSON file %s", filename)
	}

	defer func() {
		closeErr := file.Close()
		if err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "Unable to close file handle for GeoJSON file %s", file.Name())
		}
	}()

	return WriteFeatureCollection(featureCollection, file)
}

// WriteFeatureCollection writes the collection as GeoJSON. A nil collection is written as empty collection.
func WriteFeatureCollection(featureCollection *geojson.FeatureCollection, writer io.Writer) error {
	sigolo.Debug("Write features to GeoJSON")
	writeStartTime := time.Now()

	if featureCollection == nil {
		featureCollection = geojson.NewFeatureCollection()
	}

	geojsonBytes, err := featureCollection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to encode feature collection")
	}

	_, err = writer.Write(geojsonBytes)
	if err != nil {
		return errors.Wrap(err, "Unable to write feature collection")
	}

	sigolo.Debugf("Finished writing %d features in %s", len(featureCollection.Features), time.Since(writeStartTime))

	return nil
}
