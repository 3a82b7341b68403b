package xception

import (
	"fmt"
	"strings"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"

	"github.com/born-ml/xception/internal/layers"
)

// Topology constants.
const (
	DefaultClassDim     = 1000
	DefaultOutputStride = 32
	DropoutProb         = 0.5

	stemStride     = 2
	stemChannels   = 64
	inputChannels  = 3
	exitDilation   = 2
	fcPrefix       = "fc"
	entryFlowStage = "entry_flow"
	midFlowStage   = "middle_flow"
	exitFlowStage  = "exit_flow"
)

// StridePoint records the stride bookkeeping of one block.
type StridePoint struct {
	Stage     string
	Block     int // 1-based within the stage
	Requested int
	Effective int
	// Accumulated is the total downsampling factor after this block.
	Accumulated int
}

// strideTracker accumulates the downsampling factor and clips any stride
// that would push it past the limit.
type strideTracker struct {
	current int
	limit   int
	trace   []StridePoint
}

func checkStride(s, outputStride int) bool {
	return s <= outputStride
}

func (t *strideTracker) next(stage string, block, requested int) int {
	effective := requested
	if !checkStride(t.current*requested, t.limit) {
		effective = 1
	}
	t.current *= effective
	t.trace = append(t.trace, StridePoint{
		Stage:       stage,
		Block:       block,
		Requested:   requested,
		Effective:   effective,
		Accumulated: t.current,
	})
	return effective
}

// Model is the Xception-DeepLab classifier.
//
// Architecture:
//
//	Input: [batch, 3, H, W]
//	Stem:  ConvBN 3->32 3x3 s2 + ReLU, ConvBN 32->64 3x3 s1 + ReLU
//	Entry flow:  n blocks, projected skip
//	Middle flow: n blocks, 728 channels, no skip
//	Exit flow:   block1 (projected skip), block2 (dilation 2, ReLU inside, no skip)
//	Head: Dropout(0.5, downscale_in_infer) -> GlobalAvgPool -> squeeze -> Linear
//	Output: [batch, class_dim] logits
//
// The model satisfies Born's nn.Module.
// It starts in inference mode; call SetTraining(true) before training.
type Model[B tensor.Backend] struct {
	backbone     Variant
	classDim     int
	outputStride int
	finalStride  int
	strideTrace  []StridePoint

	conv1 *layers.ConvBN[B]
	conv2 *layers.ConvBN[B]

	entryFlow  []*Block[B]
	middleFlow []*Block[B]
	exitFlow1  *Block[B]
	exitFlow2  *Block[B]

	drop *layers.Dropout[B]
	pool *layers.GlobalAvgPool2D[B]
	fc   *layers.Classifier[B]

	training bool
	backend  B
}

// NewModel builds the topology of backbone with a classDim-way head.
func NewModel[B tensor.Backend](backbone string, classDim int, backend B) (*Model[B], error) {
	if classDim <= 0 {
		return nil, fmt.Errorf("%w: invalid class_dim %d", ErrConfiguration, classDim)
	}

	params, err := GenBottleneckParams(backbone)
	if err != nil {
		return nil, err
	}
	entry, err := params.Entry.plan()
	if err != nil {
		return nil, err
	}
	middle, err := params.Middle.plan()
	if err != nil {
		return nil, err
	}
	exit, err := params.Exit.plan()
	if err != nil {
		return nil, err
	}

	m := &Model[B]{
		backbone:     Variant(backbone),
		classDim:     classDim,
		outputStride: DefaultOutputStride,
		backend:      backend,
	}
	tracker := &strideTracker{current: stemStride, limit: m.outputStride}

	if m.conv1, err = layers.NewConvBN(inputChannels, 32, 3, 2, 1, layers.ActReLU, backbone+"/entry_flow/conv1", backend); err != nil {
		return nil, err
	}
	if m.conv2, err = layers.NewConvBN(32, stemChannels, 3, 1, 1, layers.ActReLU, backbone+"/entry_flow/conv2", backend); err != nil {
		return nil, err
	}

	in := stemChannels

	m.entryFlow = make([]*Block[B], 0, len(entry.strides))
	for i, requested := range entry.strides {
		stride := tracker.next(entryFlowStage, i+1, requested)
		cfg := DefaultBlockConfig(in, entry.channels[i], []int{1, 1, stride}, blockName(backbone, entryFlowStage, i+1))
		block, err := NewBlock(cfg, backend)
		if err != nil {
			return nil, err
		}
		m.entryFlow = append(m.entryFlow, block)
		in = last(entry.channels[i])
	}

	m.middleFlow = make([]*Block[B], 0, len(middle.strides))
	for i, requested := range middle.strides {
		stride := tracker.next(midFlowStage, i+1, requested)
		cfg := DefaultBlockConfig(in, middle.channels[i], []int{1, 1, stride}, blockName(backbone, midFlowStage, i+1))
		cfg.SkipConv = false
		cfg.HasSkip = false
		block, err := NewBlock(cfg, backend)
		if err != nil {
			return nil, err
		}
		m.middleFlow = append(m.middleFlow, block)
		in = last(middle.channels[i])
	}

	stride := tracker.next(exitFlowStage, 1, exit.strides[0])
	m.exitFlow1, err = NewBlock(
		DefaultBlockConfig(in, exit.channels[0], []int{1, 1, stride}, blockName(backbone, exitFlowStage, 1)),
		backend,
	)
	if err != nil {
		return nil, err
	}
	in = last(exit.channels[0])

	stride = tracker.next(exitFlowStage, 2, exit.strides[1])
	cfg := DefaultBlockConfig(in, exit.channels[1], []int{1, 1, stride}, blockName(backbone, exitFlowStage, 2))
	cfg.Dilation = exitDilation
	cfg.HasSkip = false
	cfg.ActivationInSeparable = true
	if m.exitFlow2, err = NewBlock(cfg, backend); err != nil {
		return nil, err
	}

	m.finalStride = tracker.current
	m.strideTrace = tracker.trace

	if m.drop, err = layers.NewDropout(DropoutProb, layers.DownscaleInInfer, backend); err != nil {
		return nil, err
	}
	m.pool = layers.NewGlobalAvgPool2D(backend)
	m.fc = layers.NewClassifier(last(exit.channels[1]), classDim, fcPrefix, backend)

	return m, nil
}

func blockName(backbone, stage string, index int) string {
	return fmt.Sprintf("%s/%s/block%d", backbone, stage, index)
}

func last(values []int) int {
	return values[len(values)-1]
}

// Forward computes class logits.
//
// Input:  [batch, 3, height, width]
// Output: [batch, class_dim].
func (m *Model[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != inputChannels {
		panic(fmt.Sprintf("xception: expected input [N,3,H,W], got %v", shape))
	}

	x := m.conv1.Forward(input)
	x = m.conv2.Forward(x)
	for _, block := range m.entryFlow {
		x = block.Forward(x)
	}
	for _, block := range m.middleFlow {
		x = block.Forward(x)
	}
	x = m.exitFlow1.Forward(x)
	x = m.exitFlow2.Forward(x)

	x = m.drop.Forward(x)
	x = m.pool.Forward(x)       // [batch, C, 1, 1]
	x = x.Squeeze(3).Squeeze(2) // [batch, C]
	return m.fc.Forward(x)
}

// modules returns every sub-layer in forward order.
func (m *Model[B]) modules() []layers.Layer[B] {
	mods := make([]layers.Layer[B], 0, 2+len(m.entryFlow)+len(m.middleFlow)+5)
	mods = append(mods, m.conv1, m.conv2)
	for _, block := range m.entryFlow {
		mods = append(mods, block)
	}
	for _, block := range m.middleFlow {
		mods = append(mods, block)
	}
	mods = append(mods, m.exitFlow1, m.exitFlow2, m.drop, m.pool, m.fc)
	return mods
}

// SetTraining switches batch norms and dropout between training and
// inference behavior.
func (m *Model[B]) SetTraining(training bool) {
	m.training = training
	for _, mod := range m.modules() {
		mod.SetTraining(training)
	}
}

// Training reports whether the model is in training mode.
func (m *Model[B]) Training() bool {
	return m.training
}

// Parameters returns all trainable parameters in forward order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, mod := range m.modules() {
		params = append(params, mod.Parameters()...)
	}
	return params
}

// NumParameters returns the number of trainable scalars.
func (m *Model[B]) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict returns parameters and batch norm statistics keyed by
// checkpoint name, e.g. "xception_65/entry_flow/block1/separable_conv1/depthwise/weights".
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for _, mod := range m.modules() {
		layers.MergeStateDict(stateDict, mod.StateDict())
	}
	return stateDict
}

// LoadStateDict loads every entry of StateDict from stateDict.
// Extra keys are ignored. All keys, shapes and dtypes are validated before
// anything is copied, so a failed load leaves the model unchanged.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := layers.ValidateStateDict(m.StateDict(), stateDict); err != nil {
		return fmt.Errorf("%s: %w", m.backbone, err)
	}
	for _, mod := range m.modules() {
		if err := mod.LoadStateDict(stateDict); err != nil {
			return fmt.Errorf("%s: %w", m.backbone, err)
		}
	}
	return nil
}

// Backbone returns the variant name.
func (m *Model[B]) Backbone() Variant { return m.backbone }

// ClassDim returns the number of output classes.
func (m *Model[B]) ClassDim() int { return m.classDim }

// OutputStride returns the downsampling cap.
func (m *Model[B]) OutputStride() int { return m.outputStride }

// FinalStride returns the accumulated downsampling factor after the exit flow.
func (m *Model[B]) FinalStride() int { return m.finalStride }

// StrideTrace returns the stride bookkeeping of every block in build order.
func (m *Model[B]) StrideTrace() []StridePoint {
	return append([]StridePoint(nil), m.strideTrace...)
}

// EntryFlow returns the entry flow blocks.
func (m *Model[B]) EntryFlow() []*Block[B] { return append([]*Block[B](nil), m.entryFlow...) }

// MiddleFlow returns the middle flow blocks.
func (m *Model[B]) MiddleFlow() []*Block[B] { return append([]*Block[B](nil), m.middleFlow...) }

// ExitFlow returns the two exit flow blocks.
func (m *Model[B]) ExitFlow() [2]*Block[B] { return [2]*Block[B]{m.exitFlow1, m.exitFlow2} }

// FeatureChannels returns the channel count fed to the classifier.
func (m *Model[B]) FeatureChannels() int { return m.fc.InFeatures() }

// String returns a string representation of the model architecture.
func (m *Model[B]) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "XceptionDeeplab(%s, class_dim=%d, output_stride=%d)\n", m.backbone, m.classDim, m.outputStride)
	fmt.Fprintf(&sb, "  %s\n", m.conv1)
	fmt.Fprintf(&sb, "  %s\n", m.conv2)
	for _, block := range m.entryFlow {
		fmt.Fprintf(&sb, "  %s\n", block)
	}
	for _, block := range m.middleFlow {
		fmt.Fprintf(&sb, "  %s\n", block)
	}
	fmt.Fprintf(&sb, "  %s\n", m.exitFlow1)
	fmt.Fprintf(&sb, "  %s\n", m.exitFlow2)
	fmt.Fprintf(&sb, "  %s\n", m.drop)
	fmt.Fprintf(&sb, "  %s\n", m.pool)
	fmt.Fprintf(&sb, "  %s\n", m.fc)
	return sb.String()
}
