package aws

import (
	"github.com/shopspring/decimal"

	"github.com/yourusername/cloudcity/internal/models"
)

// Monthly on-demand estimates in USD. Unlisted instance types and classes
// fall back to the default for their service.
var (
	ec2Prices = map[string]decimal.Decimal{
		"t3.micro":  decimal.RequireFromString("7.59"),
		"t3.small":  decimal.RequireFromString("15.18"),
		"t3.medium": decimal.RequireFromString("30.37"),
		"m5.large":  decimal.RequireFromString("70.08"),
	}
	ec2Default = decimal.RequireFromString("35.00")

	rdsPrices = map[string]decimal.Decimal{
		"db.t3.micro":  decimal.RequireFromString("12.41"),
		"db.t3.medium": decimal.RequireFromString("49.64"),
	}
	rdsDefault = decimal.RequireFromString("60.00")

	elbPrice = decimal.RequireFromString("16.43")
	s3Price  = decimal.RequireFromString("2.30")
)

// EstimateMonthlyCost prices a resource from the static table. class is the
// EC2 instance type or RDS instance class and is ignored for other types.
func EstimateMonthlyCost(t models.ResourceType, class string) decimal.Decimal {
	switch t {
	case models.TypeEC2:
		if p, ok := ec2Prices[class]; ok {
			return p
		}
		return ec2Default
	case models.TypeRDS:
		if p, ok := rdsPrices[class]; ok {
			return p
		}
		return rdsDefault
	case models.TypeELB:
		return elbPrice
	case models.TypeS3:
		return s3Price
	default:
		return decimal.Zero
	}
}
