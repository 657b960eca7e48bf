package heston

// 32-point Gauss-Laguerre nodes and weights for ∫_0^∞ e^{-x} f(x) dx.
// The values are pinned so prices agree bit-for-bit with the native engine
// that evaluates the same rule.
var (
	glNodes = [32]float64{
		0.044489365833267285, 0.23452610951961964, 0.5768846293018867, 1.072448753817818,
		1.7224087764446454, 2.5283367064257942, 3.492213273021994, 4.616456769749767,
		5.903958504174244, 7.358126733186241, 8.982940924212595, 10.783018632539973,
		12.763697986742725, 14.931139755522558, 17.292454336715313, 19.855860940336054,
		22.630889013196775, 25.628636022459247, 28.862101816323474, 32.346629153964734,
		36.10049480575197, 40.14571977153944, 44.50920799575494, 49.22439498730864,
		54.33372133339691, 59.89250916213402, 65.97537728793505, 72.68762809066271,
		80.18744697791352, 88.7353404178924, 98.82954286828397, 111.7513980979377,
	}
	glWeights = [32]float64{
		0.10921834195241631, 0.21044310793883672, 0.23521322966983194, 0.1959033359728629,
		0.12998378628606097, 0.07057862386571173, 0.03176091250917226, 0.011918214834837557,
		0.003738816294611212, 0.0009808033066148732, 0.00021486491880134604, 3.9203419679876094e-05,
		5.934541612868126e-06, 7.416404578666935e-07, 7.604567879120183e-08, 6.350602226625271e-09,
		4.2813829710405056e-10, 2.305899491891127e-11, 9.79937928872617e-13, 3.237801657729003e-14,
		8.171823443420105e-16, 1.5421338333936845e-17, 2.119792290163458e-19, 2.054429673787832e-21,
		1.3469825866373068e-23, 5.661294130396917e-26, 1.4185605454629279e-28, 1.91337549445389e-31,
		1.1922487600980343e-34, 2.6715112192398583e-38, 1.3386169421063085e-42, 4.5105361938984096e-48,
	}
)
