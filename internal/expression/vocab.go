package expression

// Namespaces of the intent vocabulary.
const (
	NSIntent   = "http://tio.models.tmforum.org/tio/v3.6.0/IntentCommonModel/"
	NSLogical  = "http://tio.models.tmforum.org/tio/v3.6.0/LogicalOperators/"
	NSQuantity = "http://tio.models.tmforum.org/tio/v3.6.0/QuantityOntology/"
	NSData5G   = "http://5g4data.eu/5g4data#"
	NSRDF      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
)

const (
	rdfType  = NSRDF + "type"
	rdfValue = NSRDF + "value"
	rdfFirst = NSRDF + "first"
	rdfRest  = NSRDF + "rest"
	rdfNil   = NSRDF + "nil"

	allOf = NSLogical + "allOf"

	classCondition             = NSIntent + "Condition"
	classDeploymentExpectation = NSData5G + "DeploymentExpectation"

	propDeploymentDescriptor = NSData5G + "DeploymentDescriptor"
	propApplication          = NSData5G + "Application"
	propDataCenter           = NSData5G + "DataCenter"

	propValuesOfTargetProperty = NSIntent + "valuesOfTargetProperty"
	propUnit                   = NSQuantity + "unit"

	opSmaller = "smaller"
	opLarger  = "larger"
	opInRange = "inRange"
)

var comparisons = []string{opSmaller, opLarger, opInRange}
