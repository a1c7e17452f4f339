package convert

import "math"

// cryoSPARC stores 3D poses as axis-angle (Rodrigues) vectors; RELION
// wants ZYZ Euler angles in degrees. The conversion goes through the
// rotation matrix.

type matrix [3][3]float64

// expmap builds the rotation matrix for an axis-angle vector.
func expmap(e [3]float64) matrix {
	theta := math.Sqrt(e[0]*e[0] + e[1]*e[1] + e[2]*e[2])
	if theta < 1e-16 {
		return matrix{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}

	w := [3]float64{e[0] / theta, e[1] / theta, e[2] / theta}
	k := matrix{
		{0, -w[2], w[1]},
		{w[2], 0, -w[0]},
		{-w[1], w[0], 0},
	}

	sin, cos := math.Sincos(theta)
	var r matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			kk := 0.0
			for l := 0; l < 3; l++ {
				kk += k[i][l] * k[l][j]
			}
			r[i][j] = sin*k[i][j] + (1-cos)*kk
			if i == j {
				r[i][j]++
			}
		}
	}
	return r
}

// rot2euler decomposes a rotation matrix into ZYZ Euler angles
// (rot, tilt, psi) in radians.
func rot2euler(r matrix) (alpha, beta, gamma float64) {
	const epsilon = 1e-16

	absSb := math.Sqrt(r[0][2]*r[0][2] + r[1][2]*r[1][2])
	if absSb <= 16*epsilon {
		// Degenerate: the rotation is about the z axis.
		if r[2][2] > 0 {
			return 0, 0, math.Atan2(-r[1][0], r[0][0])
		}
		return 0, math.Pi, math.Atan2(r[1][0], -r[0][0])
	}

	gamma = math.Atan2(r[1][2], -r[0][2])
	alpha = math.Atan2(r[2][1], r[2][0])

	var signSb float64
	if math.Abs(math.Sin(gamma)) < epsilon {
		signSb = sign(-r[0][2] / math.Cos(gamma))
	} else if math.Sin(gamma) > 0 {
		signSb = sign(r[1][2])
	} else {
		signSb = -sign(r[1][2])
	}
	beta = math.Atan2(signSb*absSb, r[2][2])
	return alpha, beta, gamma
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// poseToEuler converts an axis-angle pose to ZYZ Euler angles in degrees.
func poseToEuler(pose [3]float64) (rot, tilt, psi float64) {
	alpha, beta, gamma := rot2euler(expmap(pose))
	return degrees(alpha), degrees(beta), degrees(gamma)
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
