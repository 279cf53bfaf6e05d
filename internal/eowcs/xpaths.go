package eowcs

// Metadata paths inside a CoverageDescription, relative to the
// description node. Queries match by local name so the feed's choice of
// namespace prefixes does not matter; the element structure follows the
// WCS 2.0 Earth Observation profile.
const (
	eoMetadataPath = "metadata/Extension/EOMetadata"

	eoIdentifierPath = eoMetadataPath +
		"/EarthObservation/metaDataProperty/EarthObservationMetaData/identifier"

	phenomenonTimePath = eoMetadataPath + "/EarthObservation/phenomenonTime"

	eoEquipmentPath = eoMetadataPath + "/EarthObservation/procedure/EarthObservationEquipment"

	// SensorTypePath locates the instrument class (OPTICAL, RADAR, ...).
	SensorTypePath = eoEquipmentPath + "/sensor/Sensor/sensorType"

	// IncidenceAnglePath locates the acquisition incidence angle in degrees.
	IncidenceAnglePath = eoEquipmentPath + "/acquisitionParameters/Acquisition/incidenceAngle"

	// CloudCoverPath locates the cloud cover percentage of optical products.
	CloudCoverPath = eoMetadataPath +
		"/EarthObservation/result/EarthObservationResult/cloudCoverPercentage"

	// FootprintPosListPath locates the acquisition footprint vertex list,
	// in (lat, long) order per OGC convention.
	FootprintPosListPath = eoMetadataPath +
		"/EarthObservation/featureOfInterest/Footprint/multiExtentOf" +
		"/MultiSurface/surfaceMember/Polygon/exterior/LinearRing/posList"
)
