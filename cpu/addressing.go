package cpu

import "fmt"

// instructionMode tells an addressing-mode function which kind of
// instruction it's serving, since load/store/read-modify-write each spend a
// different number of ticks at the tail of the same addressing sequence.
type instructionMode int

const (
	modeLoad instructionMode = iota
	modeRMW
	modeStore
)

// addrImmediate implements immediate mode - #i. The operand is already in
// p.opVal from the opTick==2 central fetch; this only needs to advance PC.
func (p *Chip) addrImmediate(instructionMode) (bool, error) {
	if p.opTick != 2 {
		return true, InvalidCPUState{fmt.Sprintf("addrImmediate invalid opTick %d", p.opTick)}
	}
	p.PC++
	return true, nil
}

// addrZP implements zero page mode - d.
func (p *Chip) addrZP(mode instructionMode) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 4:
		return true, InvalidCPUState{fmt.Sprintf("addrZP invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return mode == modeStore, nil
	case p.opTick == 3:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 4:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// addrZPX implements zero page,X mode - d,x.
func (p *Chip) addrZPX(mode instructionMode) (bool, error) {
	return p.addrZPXY(mode, p.X)
}

// addrZPY implements zero page,Y mode - d,y.
func (p *Chip) addrZPY(mode instructionMode) (bool, error) {
	return p.addrZPXY(mode, p.Y)
}

func (p *Chip) addrZPXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 5:
		return true, InvalidCPUState{fmt.Sprintf("addrZPXY invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return false, nil
	case p.opTick == 3:
		_ = p.bus.Read(p.opAddr) // Dummy read of the unindexed address.
		p.opAddr = uint16(uint8(p.opVal + reg))
		return mode == modeStore, nil
	case p.opTick == 4:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 5:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// addrIndirectX implements (d,x) mode.
func (p *Chip) addrIndirectX(mode instructionMode) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 7:
		return true, InvalidCPUState{fmt.Sprintf("addrIndirectX invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return false, nil
	case p.opTick == 3:
		_ = p.bus.Read(p.opAddr)
		p.opAddr = uint16(uint8(p.opVal + p.X))
		return false, nil
	case p.opTick == 4:
		p.opVal = p.bus.Read(p.opAddr)
		p.opAddr = uint16(uint8(p.opAddr&0xFF) + 1)
		return false, nil
	case p.opTick == 5:
		p.opAddr = (uint16(p.bus.Read(p.opAddr)) << 8) + uint16(p.opVal)
		return mode == modeStore, nil
	case p.opTick == 6:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 7:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// addrIndirectY implements (d),y mode, including the page-cross carry
// fix-up applied to the returned address (spec.md §9 resolves this).
func (p *Chip) addrIndirectY(mode instructionMode) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 7:
		return true, InvalidCPUState{fmt.Sprintf("addrIndirectY invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return false, nil
	case p.opTick == 3:
		p.opVal = p.bus.Read(p.opAddr)
		p.opAddr = uint16(uint8(p.opAddr&0xFF) + 1)
		return false, nil
	case p.opTick == 4:
		p.opAddr = (uint16(p.bus.Read(p.opAddr)) << 8) + uint16(p.opVal)
		a := (p.opAddr & 0xFF00) + uint16(uint8(p.opAddr&0xFF)+p.Y)
		p.opVal = 0
		if a != p.opAddr+uint16(p.Y) {
			p.opVal = 1 // Signal tick 5 that the add crossed a page.
		}
		p.opAddr = a
		return false, nil
	case p.opTick == 5:
		crossed := p.opVal != 0
		p.opVal = p.bus.Read(p.opAddr)
		done := true
		if crossed {
			p.opAddr += 0x0100
			if mode == modeLoad {
				done = false
			}
		}
		if mode == modeRMW {
			done = false
		}
		return done, nil
	case p.opTick == 6:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 7:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// addrAbsolute implements absolute mode - a.
func (p *Chip) addrAbsolute(mode instructionMode) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 5:
		return true, InvalidCPUState{fmt.Sprintf("addrAbsolute invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return false, nil
	case p.opTick == 3:
		p.opVal = p.bus.Read(p.PC)
		p.PC++
		p.opAddr |= uint16(p.opVal) << 8
		return mode == modeStore, nil
	case p.opTick == 4:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 5:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// addrAbsoluteX implements absolute,X mode - a,x.
func (p *Chip) addrAbsoluteX(mode instructionMode) (bool, error) {
	return p.addrAbsoluteXY(mode, p.X)
}

// addrAbsoluteY implements absolute,Y mode - a,y.
func (p *Chip) addrAbsoluteY(mode instructionMode) (bool, error) {
	return p.addrAbsoluteXY(mode, p.Y)
}

func (p *Chip) addrAbsoluteXY(mode instructionMode, reg uint8) (bool, error) {
	switch {
	case p.opTick <= 1 || p.opTick > 6:
		return true, InvalidCPUState{fmt.Sprintf("addrAbsoluteXY invalid opTick %d", p.opTick)}
	case p.opTick == 2:
		p.opAddr = uint16(p.opVal)
		p.PC++
		return false, nil
	case p.opTick == 3:
		p.opVal = p.bus.Read(p.PC)
		p.PC++
		p.opAddr |= uint16(p.opVal) << 8
		a := (p.opAddr & 0xFF00) + uint16(uint8(p.opAddr&0xFF)+reg)
		p.opVal = 0
		if a != p.opAddr+uint16(reg) {
			p.opVal = 1
		}
		p.opAddr = a
		return false, nil
	case p.opTick == 4:
		crossed := p.opVal != 0
		p.opVal = p.bus.Read(p.opAddr)
		done := true
		if crossed {
			p.opAddr += 0x0100
			if mode == modeLoad {
				done = false
			}
		}
		if mode == modeRMW {
			done = false
		}
		return done, nil
	case p.opTick == 5:
		p.opVal = p.bus.Read(p.opAddr)
		return mode != modeRMW, nil
	}
	// case p.opTick == 6:
	p.bus.Write(p.opAddr, p.opVal)
	return true, nil
}

// loadRegister stores val into reg and updates Z/N from it.
func (p *Chip) loadRegister(reg *uint8, val uint8) (bool, error) {
	*reg = val
	p.zeroCheck(*reg)
	p.negativeCheck(*reg)
	return true, nil
}

func (p *Chip) loadRegisterA() (bool, error) { return p.loadRegister(&p.A, p.opVal) }
func (p *Chip) loadRegisterX() (bool, error) { return p.loadRegister(&p.X, p.opVal) }
func (p *Chip) loadRegisterY() (bool, error) { return p.loadRegister(&p.Y, p.opVal) }

func (p *Chip) store(val uint8, addr uint16) (bool, error) {
	p.bus.Write(addr, val)
	return true, nil
}

// storeWithFlags is store plus Z/N, used by INC/DEC on memory.
func (p *Chip) storeWithFlags(val uint8, addr uint16) (bool, error) {
	p.zeroCheck(val)
	p.negativeCheck(val)
	return p.store(val, addr)
}

type addrFunc func(instructionMode) (bool, error)

// loadInstruction drives addrFunc through modeLoad, then invokes opFunc on
// the tick the address resolves.
func (p *Chip) loadInstruction(addr addrFunc, opFunc func() (bool, error)) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addr(modeLoad)
	}
	if err != nil {
		return true, err
	}
	if p.addrDone {
		return opFunc()
	}
	return false, nil
}

// rmwInstruction drives addrFunc through modeRMW (which itself performs the
// trailing write-back tick) then invokes opFunc to compute and store the
// final result.
func (p *Chip) rmwInstruction(addr addrFunc, opFunc func() (bool, error)) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addr(modeRMW)
		return false, err
	}
	return opFunc()
}

// storeInstruction drives addrFunc through modeStore then writes val to the
// resolved address.
func (p *Chip) storeInstruction(addr addrFunc, val uint8) (bool, error) {
	var err error
	if !p.addrDone {
		p.addrDone, err = addr(modeStore)
		return false, err
	}
	return p.store(val, p.opAddr)
}
