package lzma

// distSpecialLengths gives the probability-tree size for each of the ten
// distance slots between distModelStart and distModelEnd that use a direct
// reverse bit tree instead of the fully-modeled low slots or the
// align-coded high slots.
var distSpecialLengths = [distModelEnd - distModelStart]int{2, 2, 4, 4, 8, 8, 16, 16, 32, 32}

// decoder is the complete LZMA probability model plus the range decoder and
// window it reads from and writes into. LZMA2 gives the decoder a fresh
// range decoder for every compressed chunk and builds a new decoder over the
// same window only on a dictionary reset; a properties-only or state-only
// reset reinitializes the model in place, so back-references can still reach
// across it.
type decoder struct {
	rc  *rangeDecoder
	win *window

	props Properties

	st   state
	reps [4]uint32

	isMatch    [numStates][posStatesMax]uint16
	isRep      [numStates]uint16
	isRep0     [numStates]uint16
	isRep1     [numStates]uint16
	isRep2     [numStates]uint16
	isRep0Long [numStates][posStatesMax]uint16

	distSlot    [distStates][distSlots]uint16
	distSpecial [distModelEnd - distModelStart][]uint16
	distAlign   [alignSize]uint16

	literal  *literalCoder
	matchLen *lengthCoder
	repLen   *lengthCoder
}

func newDecoder(rc *rangeDecoder, win *window, props Properties) *decoder {
	d := &decoder{
		rc:       rc,
		win:      win,
		matchLen: newLengthCoder(),
		repLen:   newLengthCoder(),
	}
	d.setProps(props)
	return d
}

// setProps (re)initializes the literal coder for lc/lp and resets every
// probability table, as a fresh LZMA1 stream or an LZMA2 properties-reset
// chunk requires.
func (d *decoder) setProps(props Properties) {
	d.props = props
	d.literal = newLiteralCoder(props.LC, props.LP)
	d.resetState()
}

// resetState clears the state machine, reps and probability tables without
// touching lc/lp/pb, as an LZMA2 state-reset chunk requires.
func (d *decoder) resetState() {
	d.st = 0
	d.reps = [4]uint32{}
	for i := range d.isMatch {
		for j := range d.isMatch[i] {
			d.isMatch[i][j] = probInitValue
		}
		d.isRep0Long[i] = [posStatesMax]uint16{}
		for j := range d.isRep0Long[i] {
			d.isRep0Long[i][j] = probInitValue
		}
	}
	for i := range d.isRep {
		d.isRep[i] = probInitValue
		d.isRep0[i] = probInitValue
		d.isRep1[i] = probInitValue
		d.isRep2[i] = probInitValue
	}
	for i := range d.distSlot {
		for j := range d.distSlot[i] {
			d.distSlot[i][j] = probInitValue
		}
	}
	for i := range d.distSpecial {
		d.distSpecial[i] = make([]uint16, distSpecialLengths[i])
		for j := range d.distSpecial[i] {
			d.distSpecial[i][j] = probInitValue
		}
	}
	for i := range d.distAlign {
		d.distAlign[i] = probInitValue
	}
	d.matchLen.reset()
	d.repLen.reset()
	d.literal.reset()
}

func (d *decoder) posMask() uint32 { return 1<<d.props.PB - 1 }

// decode runs the decode loop until the window's per-call limit is
// exhausted or the end-of-stream marker (an all-ones rep0 distance) is
// decoded, in which case it returns io.EOF-like sentinel via the eos flag.
func (d *decoder) decode() (eos bool, err error) {
	if err := d.win.repeatPending(); err != nil {
		return false, err
	}
	for d.win.hasSpace() {
		posState := d.win.getPos() & d.posMask()
		isMatch, err := d.rc.decodeBit(d.isMatch[d.st][:], int(posState))
		if err != nil {
			return false, err
		}
		if isMatch == 0 {
			if err := d.decodeLiteral(posState); err != nil {
				return false, err
			}
			continue
		}

		isRep, err := d.rc.decodeBit(d.isRep[:], int(d.st))
		if err != nil {
			return false, err
		}
		var length int
		if isRep == 0 {
			length, err = d.decodeMatch(posState)
			if err != nil {
				return false, err
			}
			if d.reps[0] == 0xFFFFFFFF {
				return true, nil
			}
		} else {
			length, err = d.decodeRepMatch(posState)
			if err != nil {
				return false, err
			}
		}
		if err := d.win.repeat(int(d.reps[0]), length); err != nil {
			return false, err
		}
	}
	return false, nil
}

func (d *decoder) decodeLiteral(posState uint32) error {
	probState := d.literal.state(d.win.getPos(), d.win.getByte(0))
	var b byte
	var err error
	if d.st.isLiteral() {
		b, err = d.literal.decodeNormal(d.rc, probState)
	} else {
		b, err = d.literal.decodeMatched(d.rc, probState, d.win.getByte(int(d.reps[0])))
	}
	if err != nil {
		return err
	}
	d.win.putByte(b)
	d.st = d.st.afterLiteral()
	return nil
}

func (d *decoder) decodeMatch(posState uint32) (int, error) {
	d.st = d.st.afterMatch()
	d.reps[3], d.reps[2], d.reps[1] = d.reps[2], d.reps[1], d.reps[0]

	length, err := d.matchLen.decode(d.rc, posState)
	if err != nil {
		return 0, err
	}

	distSlot, err := d.rc.decodeBitTree(d.distSlot[distStateForLen(length)][:])
	if err != nil {
		return 0, err
	}
	if distSlot < distModelStart {
		d.reps[0] = uint32(distSlot)
		return length, nil
	}

	limit := uint32(distSlot>>1) - 1
	dist := (2 | uint32(distSlot&1)) << limit
	if distSlot < distModelEnd {
		probs := d.distSpecial[distSlot-distModelStart]
		sym, err := d.rc.decodeReverseBitTree(probs)
		if err != nil {
			return 0, err
		}
		dist |= uint32(sym)
	} else {
		direct, err := d.rc.decodeDirectBits(limit - alignBits)
		if err != nil {
			return 0, err
		}
		dist += direct << alignBits
		align, err := d.rc.decodeReverseBitTree(d.distAlign[:])
		if err != nil {
			return 0, err
		}
		dist += uint32(align)
	}
	d.reps[0] = dist
	return length, nil
}

func (d *decoder) decodeRepMatch(posState uint32) (int, error) {
	isRep0, err := d.rc.decodeBit(d.isRep0[:], int(d.st))
	if err != nil {
		return 0, err
	}
	if isRep0 == 0 {
		isRep0Long, err := d.rc.decodeBit(d.isRep0Long[d.st][:], int(posState))
		if err != nil {
			return 0, err
		}
		if isRep0Long == 0 {
			d.st = d.st.afterShortRep()
			return 1, nil
		}
	} else {
		var dist uint32
		isRep1, err := d.rc.decodeBit(d.isRep1[:], int(d.st))
		if err != nil {
			return 0, err
		}
		if isRep1 == 0 {
			dist = d.reps[1]
		} else {
			isRep2, err := d.rc.decodeBit(d.isRep2[:], int(d.st))
			if err != nil {
				return 0, err
			}
			if isRep2 == 0 {
				dist = d.reps[2]
				d.reps[2] = d.reps[1]
			} else {
				dist = d.reps[3]
				d.reps[3] = d.reps[2]
				d.reps[2] = d.reps[1]
			}
		}
		d.reps[1] = d.reps[0]
		d.reps[0] = dist
	}
	d.st = d.st.afterLongRep()
	length, err := d.repLen.decode(d.rc, posState)
	if err != nil {
		return 0, err
	}
	return length, nil
}
