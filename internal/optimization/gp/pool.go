package gp

import "gonum.org/v1/gonum/mat"

// matrixPool reuses matrix allocations across re-fits. Kernel matrices are
// rebuilt from scratch on every Train call, so the backing storage is the
// only thing worth keeping.
type matrixPool struct {
	sym   []*mat.SymDense
	dense []*mat.Dense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{
		sym:   make([]*mat.SymDense, 0, 8),
		dense: make([]*mat.Dense, 0, 8),
	}
}

func (p *matrixPool) getSym(n int) *mat.SymDense {
	for i := len(p.sym) - 1; i >= 0; i-- {
		m := p.sym[i]
		if m.SymmetricDim() == n {
			p.sym = append(p.sym[:i], p.sym[i+1:]...)
			m.Zero()
			return m
		}
	}
	return mat.NewSymDense(n, nil)
}

func (p *matrixPool) putSym(m *mat.SymDense) {
	p.sym = append(p.sym, m)
}

func (p *matrixPool) getDense(r, c int) *mat.Dense {
	for i := len(p.dense) - 1; i >= 0; i-- {
		m := p.dense[i]
		if mr, mc := m.Dims(); mr == r && mc == c {
			p.dense = append(p.dense[:i], p.dense[i+1:]...)
			m.Zero()
			return m
		}
	}
	return mat.NewDense(r, c, nil)
}

func (p *matrixPool) putDense(m *mat.Dense) {
	p.dense = append(p.dense, m)
}
