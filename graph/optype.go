package graph

// OpType is an enum of the operations a computation Graph can hold.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeIdentity

	OpTypeNeg
	OpTypeAbs
	OpTypeExp
	OpTypeLog
	OpTypeSqrt
	OpTypeTanh
	OpTypeLogistic

	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeMax
	OpTypeMin
	OpTypePow

	OpTypeMatMul
	OpTypeReduceSum
	OpTypeReduceMax

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)
