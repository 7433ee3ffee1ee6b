package event

import "go-hep.org/x/hep/fmom"

// P4 returns the four-momentum of object j as (pt, eta, phi, mass).
func (o *Objects) P4(j int) fmom.PtEtaPhiM {
	return fmom.NewPtEtaPhiM(o.Pt[j], o.Eta[j], o.Phi[j], o.Mass[j])
}

// P4Sum returns the four-momentum vector sum of the objects at the given
// indices, in Cartesian components so downstream code can read off the
// combined transverse momentum and invariant mass.
func (o *Objects) P4Sum(idx ...int) fmom.PxPyPzE {
	var px, py, pz, e float64
	for _, j := range idx {
		p := o.P4(j)
		px += p.Px()
		py += p.Py()
		pz += p.Pz()
		e += p.E()
	}
	return fmom.NewPxPyPzE(px, py, pz, e)
}
