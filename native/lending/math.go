package lending

import "math/big"

// Three fixed-point scales coexist and must not be mixed: WAD (1e18 = 1.0)
// for prices, utilisation and health factors; the rate scale (1e6 = 100%)
// for borrow rates, profit targets and tier premiums; and the threshold
// scale (1000 = 100%) for borrow/liquidation thresholds. RAY (1e27) is used
// only for per-second compound factors so multi-year exponentiation keeps
// its precision.
var (
	wad            = mustBigInt("1000000000000000000")
	ray            = mustBigInt("1000000000000000000000000000")
	halfRay        = new(big.Int).Rsh(mustBigInt("1000000000000000000000000000"), 1)
	rateScale      = big.NewInt(1_000_000)
	thresholdScale = big.NewInt(1000)

	// maxHealthFactor is the sentinel returned for debt-free positions.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

const secondsPerYear = 31_536_000

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// annualRateToRay converts an annual rate in the 1e6 scale into the
// RAY-scaled per-second growth factor 1 + rate/secondsPerYear.
func annualRateToRay(rate *big.Int) *big.Int {
	if rate == nil || rate.Sign() <= 0 {
		return new(big.Int).Set(ray)
	}
	perSecond := new(big.Int).Mul(rate, ray)
	perSecond.Quo(perSecond, rateScale)
	perSecond.Quo(perSecond, big.NewInt(secondsPerYear))
	return perSecond.Add(perSecond, ray)
}

// rayMul multiplies two RAY-scaled values with half-up rounding.
func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// rayPow raises a RAY-scaled factor to the n-th power by squaring. This is
// the binomial approximation of e^(rate*n) used for continuous compounding;
// big.Int intermediates make it exact to RAY precision for any duration.
func rayPow(factor *big.Int, n uint64) *big.Int {
	result := new(big.Int).Set(ray)
	if factor == nil || n == 0 {
		return result
	}
	base := new(big.Int).Set(factor)
	for n > 0 {
		if n&1 == 1 {
			result = rayMul(result, base)
		}
		n >>= 1
		if n > 0 {
			base = rayMul(base, base)
		}
	}
	return result
}

// accrueInterest compounds principal at the RAY-scaled per-second factor
// over the elapsed duration in seconds.
func accrueInterest(principal, rateRay *big.Int, seconds uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 {
		return big.NewInt(0)
	}
	if rateRay == nil || seconds == 0 {
		return new(big.Int).Set(principal)
	}
	factor := rayPow(rateRay, seconds)
	compounded := new(big.Int).Mul(principal, factor)
	compounded.Add(compounded, halfRay)
	compounded.Quo(compounded, ray)
	return compounded
}

// getInterest returns only the interest portion of accrueInterest.
func getInterest(principal, rateRay *big.Int, seconds uint64) *big.Int {
	compounded := accrueInterest(principal, rateRay, seconds)
	interest := compounded.Sub(compounded, principal)
	if interest.Sign() < 0 {
		return big.NewInt(0)
	}
	return interest
}

// breakEvenRate returns the annual rate (1e6 scale) at which loanAmount
// would earn interestEarned over a year.
func breakEvenRate(loanAmount, interestEarned *big.Int) *big.Int {
	if loanAmount == nil || loanAmount.Sign() <= 0 {
		return big.NewInt(0)
	}
	if interestEarned == nil || interestEarned.Sign() <= 0 {
		return big.NewInt(0)
	}
	total := new(big.Int).Add(loanAmount, interestEarned)
	total.Mul(total, rateScale)
	total.Quo(total, loanAmount)
	return total.Sub(total, rateScale)
}

// pow10 returns 10^n as a big integer.
func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
